package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/peterh/liner"
	"github.com/spf13/viper"

	"github.com/dot5enko/local-query-driver/block"
	"github.com/dot5enko/local-query-driver/driver"
	"github.com/dot5enko/local-query-driver/engine"
	"github.com/dot5enko/local-query-driver/protocol"
	"github.com/dot5enko/local-query-driver/session"
)

var (
	promptColor = color.New(color.FgGreen, color.Bold)
	errColor    = color.New(color.FgRed)
	dimColor    = color.New(color.Faint)
	headColor   = color.New(color.FgCyan)
)

func loadConfig() {

	viper.SetDefault("user", "default")
	viper.SetDefault("database", "default")
	viper.SetDefault("progress", true)
	viper.SetDefault("profile_events", false)
	viper.SetDefault("extremes", false)
	viper.SetDefault("debug_packets", false)
	viper.SetDefault("max_threads", 2)
	viper.SetDefault("log_level", "warn")

	viper.SetEnvPrefix("lqd")
	viper.AutomaticEnv()

	viper.SetConfigName("lqd")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.config")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			errColor.Fprintf(os.Stderr, "config : %s\n", err.Error())
		}
	}
}

func logLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

func historyPath() string {

	home, err := os.UserHomeDir()
	if err != nil {
		return ".lqd_history"
	}

	return filepath.Join(home, ".lqd_history")
}

func main() {

	loadConfig()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(viper.GetString("log_level")),
	})))

	eng, err := engine.New(engine.DefaultConfig())
	if err != nil {
		errColor.Fprintf(os.Stderr, "engine init : %s\n", err.Error())
		os.Exit(1)
	}
	defer eng.Close()

	sess := session.New(viper.GetString("user"))
	sess.SetDefaultDatabase(viper.GetString("database"))
	sess.Settings.Extremes = viper.GetBool("extremes")
	sess.Settings.MaxThreads = viper.GetInt("max_threads")

	opts := driver.DefaultOptions()
	opts.SendProgress = viper.GetBool("progress")
	opts.SendProfileEvents = viper.GetBool("profile_events")
	opts.DebugPackets = viper.GetBool("debug_packets")

	conn := driver.New(eng, sess, opts)

	logs := make(chan protocol.LogEntry, 64)
	conn.SetLogsQueue(logs)

	name, major, minor, patch, _ := conn.ServerVersion()
	fmt.Printf("%s %d.%d.%d on %s\n", name, major, minor, patch, conn.ServerDisplayName())
	dimColor.Println("type a query, or exit to quit")

	line := liner.NewLiner()
	defer line.Close()

	line.SetCtrlCAborts(true)

	if f, err := os.Open(historyPath()); err == nil {
		line.ReadHistory(f)
		f.Close()
	}

	for {
		input, err := line.Prompt(promptColor.Sprint(":) "))
		if err != nil {
			// ctrl-c or ctrl-d
			break
		}

		input = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(input), ";"))
		if input == "" {
			continue
		}

		if input == "exit" || input == "quit" || input == `\q` {
			break
		}

		line.AppendHistory(input)

		runQuery(conn, input)
	}

	if f, err := os.Create(historyPath()); err == nil {
		line.WriteHistory(f)
		f.Close()
	}
}

func runQuery(conn *driver.LocalConnection, query string) {

	err := conn.SendQuery(query, nil, "", protocol.StageComplete, nil, nil, nil)
	if err != nil {
		errColor.Printf("error : %s\n", err.Error())
		return
	}

	rows := 0
	printedHeader := false

	for {
		packet, err := conn.ReceivePacket()
		if err != nil {
			errColor.Printf("receive : %s\n", err.Error())
			return
		}

		switch packet.Type {

		case protocol.ServerData:
			if !printedHeader {
				printHeader(packet.Block)
				printedHeader = true
			}
			rows += packet.Block.Rows()
			printBlock(packet.Block)

		case protocol.ServerTotals:
			dimColor.Println("totals:")
			printBlock(packet.Block)

		case protocol.ServerExtremes:
			dimColor.Println("extremes:")
			printBlock(packet.Block)

		case protocol.ServerProgress:
			if packet.Progress != nil && packet.Progress.ReadRows > 0 {
				dimColor.Printf("progress: %d rows, %d bytes\n",
					packet.Progress.ReadRows, packet.Progress.ReadBytes)
			}

		case protocol.ServerProfileEvents:
			for _, entry := range packet.ProfileEvents {
				dimColor.Printf("event %s = %d (thread %d)\n",
					entry.Name, entry.Value, entry.ThreadID)
			}

		case protocol.ServerLog:
			for _, entry := range packet.Logs {
				dimColor.Printf("[%s] %s: %s\n",
					entry.Time.Format("15:04:05.000"), entry.Source, entry.Text)
			}

		case protocol.ServerException:
			errColor.Printf("%s (code %d): %s\n",
				packet.Exception.Name, packet.Exception.Code, packet.Exception.Message)
			return

		case protocol.ServerEndOfStream:
			dimColor.Printf("ok, %d rows\n", rows)
			return
		}
	}
}

func printHeader(b *block.Block) {

	names := make([]string, 0, len(b.Columns))
	for _, c := range b.Columns {
		names = append(names, fmt.Sprintf("%s (%s)", c.Name, c.Type.String()))
	}

	headColor.Println(strings.Join(names, "\t"))
}

func printBlock(b *block.Block) {

	for i := 0; i < b.Rows(); i++ {
		cells := make([]string, 0, len(b.Columns))
		for _, c := range b.Columns {
			cells = append(cells, fmt.Sprintf("%v", c.Data.Value(i)))
		}
		fmt.Println(strings.Join(cells, "\t"))
	}
}
