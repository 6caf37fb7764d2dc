package driver

import (
	"errors"
	"testing"
	"time"

	"github.com/dot5enko/local-query-driver/block"
	"github.com/dot5enko/local-query-driver/engine"
	"github.com/dot5enko/local-query-driver/protocol"
	"github.com/dot5enko/local-query-driver/session"
)

// telemetry disabled so data tests see the bare packet sequence
func quietConnection(t *testing.T) *LocalConnection {

	t.Helper()

	eng, err := engine.New(engine.DefaultConfig())
	if err != nil {
		t.Fatalf("engine : %s", err.Error())
	}
	t.Cleanup(eng.Close)

	sess := session.New("default")
	sess.SetDefaultDatabase("default")

	return New(eng, sess, Options{})
}

func drain(t *testing.T, conn *LocalConnection) []protocol.Packet {

	t.Helper()

	var packets []protocol.Packet

	for {
		packet, err := conn.ReceivePacket()
		if err != nil {
			t.Fatalf("receive : %s", err.Error())
		}

		packets = append(packets, packet)

		if packet.Type == protocol.ServerEndOfStream || packet.Type == protocol.ServerException {
			return packets
		}
	}
}

func run(t *testing.T, conn *LocalConnection, query string) []protocol.Packet {

	t.Helper()

	if err := conn.SendQuery(query, nil, "", protocol.StageComplete, nil, nil, nil); err != nil {
		t.Fatalf("sendQuery '%s' : %s", query, err.Error())
	}

	return drain(t, conn)
}

func packetTypes(packets []protocol.Packet) []uint64 {
	out := make([]uint64, len(packets))
	for i, p := range packets {
		out[i] = p.Type
	}
	return out
}

func dataRows(packets []protocol.Packet) int {
	rows := 0
	for _, p := range packets {
		if p.Type == protocol.ServerData {
			rows += p.Block.Rows()
		}
	}
	return rows
}

func TestSelectLiteralPacketSequence(t *testing.T) {

	conn := quietConnection(t)

	packets := run(t, conn, "SELECT 1")

	if len(packets) != 2 {
		t.Fatalf("Expected 2 packets but got %d : %v", len(packets), packetTypes(packets))
	}

	if packets[0].Type != protocol.ServerData {
		t.Errorf("Expected Data but got %s", packets[0].TypeName())
	}
	if packets[1].Type != protocol.ServerEndOfStream {
		t.Errorf("Expected EndOfStream but got %s", packets[1].TypeName())
	}

	b := packets[0].Block
	if b.Rows() != 1 {
		t.Fatalf("Expected 1 row but got %d", b.Rows())
	}
	if got := b.Columns[0].Data.Value(0); got != uint64(1) {
		t.Errorf("Expected 1 but got %v", got)
	}
}

func TestSelectLiteralList(t *testing.T) {

	conn := quietConnection(t)

	packets := run(t, conn, "SELECT 1, -2, 2.5, 'abc'")

	b := packets[0].Block
	if len(b.Columns) != 4 {
		t.Fatalf("Expected 4 columns but got %d", len(b.Columns))
	}

	if got := b.Columns[1].Data.Value(0); got != int64(-2) {
		t.Errorf("Expected -2 but got %v", got)
	}
	if got := b.Columns[2].Data.Value(0); got != 2.5 {
		t.Errorf("Expected 2.5 but got %v", got)
	}
	if got := b.Columns[3].Data.Value(0); got != "abc" {
		t.Errorf("Expected abc but got %v", got)
	}
}

func TestCreateInsertScan(t *testing.T) {

	conn := quietConnection(t)

	run(t, conn, "CREATE TABLE metrics (id UInt64, value Float64)")
	run(t, conn, "INSERT INTO metrics VALUES (1, 1.5), (2, 2.5), (3, 3.5)")

	packets := run(t, conn, "SELECT * FROM metrics WHERE id > 1")

	if rows := dataRows(packets); rows != 2 {
		t.Errorf("Expected 2 rows but got %d", rows)
	}

	packets = run(t, conn, "SELECT id FROM metrics LIMIT 2")

	if rows := dataRows(packets); rows != 2 {
		t.Errorf("Expected 2 rows but got %d", rows)
	}
	if cols := len(packets[0].Block.Columns); cols != 1 {
		t.Errorf("Expected 1 column but got %d", cols)
	}
}

func TestDropTable(t *testing.T) {

	conn := quietConnection(t)

	run(t, conn, "CREATE TABLE tmp (id UInt64)")
	run(t, conn, "DROP TABLE tmp")

	packets := run(t, conn, "SELECT * FROM tmp")

	last := packets[len(packets)-1]
	if last.Type != protocol.ServerException {
		t.Fatalf("Expected Exception but got %s", last.TypeName())
	}
	if last.Exception.Code != protocol.CodeUnknownTable {
		t.Errorf("Expected code %d but got %d", protocol.CodeUnknownTable, last.Exception.Code)
	}
}

func TestCountOverNumbers(t *testing.T) {

	conn := quietConnection(t)

	packets := run(t, conn, "SELECT count() FROM numbers(1000)")

	b := packets[0].Block
	if got := b.Columns[0].Data.Value(0); got != uint64(1000) {
		t.Errorf("Expected 1000 but got %v", got)
	}
}

func TestNumbersWithWhere(t *testing.T) {

	conn := quietConnection(t)

	packets := run(t, conn, "SELECT * FROM numbers(100) WHERE number > 95")

	if rows := dataRows(packets); rows != 4 {
		t.Fatalf("Expected 4 rows but got %d", rows)
	}
	if got := packets[0].Block.Columns[0].Data.Value(0); got != uint64(96) {
		t.Errorf("Expected 96 but got %v", got)
	}

	packets = run(t, conn, "SELECT count() FROM numbers(100) WHERE number > 95")

	if got := packets[0].Block.Columns[0].Data.Value(0); got != uint64(4) {
		t.Errorf("Expected 4 but got %v", got)
	}

	// the limit counts rows surviving the filter
	packets = run(t, conn, "SELECT * FROM numbers(100) WHERE number >= 10 LIMIT 5")

	if rows := dataRows(packets); rows != 5 {
		t.Fatalf("Expected 5 rows but got %d", rows)
	}
	if got := packets[0].Block.Columns[0].Data.Value(0); got != uint64(10) {
		t.Errorf("Expected 10 but got %v", got)
	}
}

func TestSumWithTotals(t *testing.T) {

	conn := quietConnection(t)

	packets := run(t, conn, "SELECT sum(number) FROM numbers(100) WITH TOTALS")

	types := packetTypes(packets)

	sawTotals := false
	for i, typ := range types {
		if typ == protocol.ServerTotals {
			sawTotals = true
			if types[len(types)-1] != protocol.ServerEndOfStream {
				t.Errorf("Expected EndOfStream last but got %v", types)
			}
			totals := packets[i].Block
			if got := totals.Columns[0].Data.Value(0); got != float64(4950) {
				t.Errorf("Expected 4950 but got %v", got)
			}
		}
	}

	if !sawTotals {
		t.Errorf("Expected a Totals packet, got %v", types)
	}

	if got := packets[0].Block.Columns[0].Data.Value(0); got != float64(4950) {
		t.Errorf("Expected 4950 but got %v", got)
	}
}

func TestCancelledSleepDrainsWithoutData(t *testing.T) {

	conn := quietConnection(t)

	if err := conn.SendQuery("SELECT sleep(5)", nil, "", protocol.StageComplete, nil, nil, nil); err != nil {
		t.Fatalf("sendQuery : %s", err.Error())
	}

	conn.SendCancel()

	before := time.Now()
	packets := drain(t, conn)
	elapsed := time.Since(before)

	if elapsed > 2*time.Second {
		t.Errorf("Expected a fast drain but took %v", elapsed)
	}

	for _, p := range packets {
		if p.Type == protocol.ServerData {
			t.Errorf("Expected no Data after cancel but got one")
		}
		if p.Type == protocol.ServerException {
			t.Errorf("Expected no Exception after cancel but got %s", p.Exception.Message)
		}
	}
}

func TestSecondQueryRejectedWhileActive(t *testing.T) {

	conn := quietConnection(t)

	if err := conn.SendQuery("SELECT 1", nil, "", protocol.StageComplete, nil, nil, nil); err != nil {
		t.Fatalf("sendQuery : %s", err.Error())
	}

	if err := conn.SendQuery("SELECT 2", nil, "", protocol.StageComplete, nil, nil, nil); err == nil {
		t.Fatalf("Expected an error for the second sendQuery")
	}

	// the first query is untouched and still drains normally
	packets := drain(t, conn)
	if rows := dataRows(packets); rows != 1 {
		t.Errorf("Expected 1 row but got %d", rows)
	}
}

func TestConnectionReusableAfterException(t *testing.T) {

	conn := quietConnection(t)

	packets := run(t, conn, "SELECT * FROM missing")
	if packets[len(packets)-1].Type != protocol.ServerException {
		t.Fatalf("Expected Exception but got %v", packetTypes(packets))
	}

	packets = run(t, conn, "SELECT 1")
	if rows := dataRows(packets); rows != 1 {
		t.Errorf("Expected 1 row but got %d", rows)
	}
}

func TestSyntaxErrorCode(t *testing.T) {

	conn := quietConnection(t)

	packets := run(t, conn, "FROBNICATE everything")

	last := packets[len(packets)-1]
	if last.Type != protocol.ServerException {
		t.Fatalf("Expected Exception but got %s", last.TypeName())
	}
	if last.Exception.Code != protocol.CodeSyntaxError {
		t.Errorf("Expected code %d but got %d", protocol.CodeSyntaxError, last.Exception.Code)
	}
}

func TestInsertThroughSendData(t *testing.T) {

	conn := quietConnection(t)

	run(t, conn, "CREATE TABLE events (id UInt64, weight Float64)")

	if err := conn.SendQuery("INSERT INTO events", nil, "", protocol.StageComplete, nil, nil, nil); err != nil {
		t.Fatalf("sendQuery : %s", err.Error())
	}

	if !conn.IsSendDataNeeded() {
		t.Fatalf("Expected the insert to wait for data")
	}

	b := block.NewOfTypes(
		[]string{"id", "weight"},
		[]block.FieldType{block.Uint64FieldType, block.Float64FieldType},
	)
	b.AppendRow(uint64(1), 0.5)
	b.AppendRow(uint64(2), 1.5)

	if err := conn.SendData(b, "", false); err != nil {
		t.Fatalf("sendData : %s", err.Error())
	}

	// empty unnamed block ends the feed
	if err := conn.SendData(nil, "", false); err != nil {
		t.Fatalf("finish : %s", err.Error())
	}

	packets := drain(t, conn)
	if packets[len(packets)-1].Type != protocol.ServerEndOfStream {
		t.Fatalf("Expected EndOfStream but got %v", packetTypes(packets))
	}

	packets = run(t, conn, "SELECT count() FROM events")
	if got := packets[0].Block.Columns[0].Data.Value(0); got != uint64(2) {
		t.Errorf("Expected 2 but got %v", got)
	}
}

func TestExternalTableVisibleToQuery(t *testing.T) {

	conn := quietConnection(t)

	if err := conn.SendQuery("SELECT * FROM ext", nil, "", protocol.StageComplete, nil, nil, nil); err != nil {
		t.Fatalf("sendQuery : %s", err.Error())
	}

	ext := block.NewOfTypes([]string{"id"}, []block.FieldType{block.Uint64FieldType})
	ext.AppendRow(uint64(7))
	ext.AppendRow(uint64(8))

	if err := conn.SendData(ext, "ext", false); err != nil {
		t.Fatalf("sendData : %s", err.Error())
	}

	packets := drain(t, conn)
	if rows := dataRows(packets); rows != 2 {
		t.Errorf("Expected 2 rows but got %d", rows)
	}

	// external tables die with their query
	packets = run(t, conn, "SELECT * FROM ext")
	if packets[len(packets)-1].Type != protocol.ServerException {
		t.Errorf("Expected Exception but got %v", packetTypes(packets))
	}
}

func TestFetchColumnsStage(t *testing.T) {

	conn := quietConnection(t)

	if err := conn.SendQuery("SELECT * FROM numbers(5)", nil, "", protocol.StageFetchColumns, nil, nil, nil); err != nil {
		t.Fatalf("sendQuery : %s", err.Error())
	}

	desc := conn.ColumnsDescription()
	if desc == nil || len(desc.Columns) != 1 || desc.Columns[0].Name != "number" {
		t.Fatalf("Expected a 'number' column description, got %v", desc)
	}

	packets := drain(t, conn)
	if rows := dataRows(packets); rows != 0 {
		t.Errorf("Expected no rows but got %d", rows)
	}
}

func TestProgressAccountsEveryRow(t *testing.T) {

	eng, err := engine.New(engine.DefaultConfig())
	if err != nil {
		t.Fatalf("engine : %s", err.Error())
	}
	t.Cleanup(eng.Close)

	conn := New(eng, session.New("default"), Options{SendProgress: true})

	packets := run(t, conn, "SELECT * FROM numbers(200000)")

	var readRows uint64
	sawProfileInfo := false

	for _, p := range packets {
		switch p.Type {
		case protocol.ServerProgress:
			readRows += p.Progress.ReadRows
		case protocol.ServerProfileInfo:
			sawProfileInfo = true
			if p.ProfileInfo.Rows != 200000 {
				t.Errorf("Expected 200000 profile rows but got %d", p.ProfileInfo.Rows)
			}
		}
	}

	if readRows != 200000 {
		t.Errorf("Expected progress for 200000 rows but got %d", readRows)
	}
	if !sawProfileInfo {
		t.Errorf("Expected a ProfileInfo packet")
	}
	if rows := dataRows(packets); rows != 200000 {
		t.Errorf("Expected 200000 rows but got %d", rows)
	}
}

func TestProgressThrottledByInterval(t *testing.T) {

	eng, err := engine.New(engine.DefaultConfig())
	if err != nil {
		t.Fatalf("engine : %s", err.Error())
	}
	t.Cleanup(eng.Close)

	conn := New(eng, session.New("default"), Options{
		SendProgress:     true,
		ProgressInterval: time.Hour,
	})

	// multiple blocks worth of rows, yet the interval never elapses, so
	// no Progress goes out mid-stream
	packets := run(t, conn, "SELECT * FROM numbers(200000)")

	progressPackets := 0
	var readRows uint64

	for _, p := range packets {
		if p.Type == protocol.ServerProgress {
			progressPackets++
			readRows += p.Progress.ReadRows
		}
	}

	if progressPackets != 1 {
		t.Errorf("Expected only the final Progress packet but got %d", progressPackets)
	}
	if readRows != 200000 {
		t.Errorf("Expected the final delta to cover 200000 rows but got %d", readRows)
	}
}

func TestScalarBlockMustBeSingleRow(t *testing.T) {

	conn := quietConnection(t)

	if err := conn.SendQuery("SELECT * FROM s", nil, "", protocol.StageComplete, nil, nil, nil); err != nil {
		t.Fatalf("sendQuery : %s", err.Error())
	}

	two := block.NewOfTypes([]string{"x"}, []block.FieldType{block.Uint64FieldType})
	two.AppendRow(uint64(1))
	two.AppendRow(uint64(2))

	if err := conn.SendData(two, "s", true); !errors.Is(err, ErrScalarShape) {
		t.Fatalf("Expected a shape error for a two-row scalar but got %v", err)
	}

	one := block.NewOfTypes([]string{"x"}, []block.FieldType{block.Uint64FieldType})
	one.AppendRow(uint64(42))

	if err := conn.SendData(one, "s", true); err != nil {
		t.Fatalf("sendData : %s", err.Error())
	}

	packets := drain(t, conn)
	if rows := dataRows(packets); rows != 1 {
		t.Fatalf("Expected 1 row but got %d", rows)
	}
	if got := packets[0].Block.Columns[0].Data.Value(0); got != uint64(42) {
		t.Errorf("Expected 42 but got %v", got)
	}
}

func TestProgressCallback(t *testing.T) {

	conn := quietConnection(t)

	var fromCallback uint64
	cb := func(v protocol.ProgressValues) {
		fromCallback += v.ReadRows
	}

	if err := conn.SendQuery("SELECT * FROM numbers(1000)", nil, "", protocol.StageComplete, nil, nil, cb); err != nil {
		t.Fatalf("sendQuery : %s", err.Error())
	}
	drain(t, conn)

	if fromCallback != 1000 {
		t.Errorf("Expected 1000 rows via callback but got %d", fromCallback)
	}
}

func TestExtremesPacket(t *testing.T) {

	conn := quietConnection(t)

	settings := &QuerySettings{}
	settings.Extremes = true

	if err := conn.SendQuery("SELECT * FROM numbers(10)", nil, "", protocol.StageComplete, settings, nil, nil); err != nil {
		t.Fatalf("sendQuery : %s", err.Error())
	}

	packets := drain(t, conn)

	var extremes *block.Block
	for _, p := range packets {
		if p.Type == protocol.ServerExtremes {
			extremes = p.Block
		}
	}

	if extremes == nil {
		t.Fatalf("Expected an Extremes packet, got %v", packetTypes(packets))
	}
	if extremes.Rows() != 2 {
		t.Fatalf("Expected 2 extremes rows but got %d", extremes.Rows())
	}
	if got := extremes.Columns[0].Data.Value(0); got != uint64(0) {
		t.Errorf("Expected min 0 but got %v", got)
	}
	if got := extremes.Columns[0].Data.Value(1); got != uint64(9) {
		t.Errorf("Expected max 9 but got %v", got)
	}
}

func TestQueryParamSubstitution(t *testing.T) {

	conn := quietConnection(t)

	params := map[string]string{"n": "3"}

	if err := conn.SendQuery("SELECT count() FROM numbers({n})", params, "", protocol.StageComplete, nil, nil, nil); err != nil {
		t.Fatalf("sendQuery : %s", err.Error())
	}

	packets := drain(t, conn)
	if got := packets[0].Block.Columns[0].Data.Value(0); got != uint64(3) {
		t.Errorf("Expected 3 but got %v", got)
	}
}

func TestLogPacketDelivery(t *testing.T) {

	conn := quietConnection(t)
	logs := make(chan protocol.LogEntry, 64)
	conn.SetLogsQueue(logs)

	if err := conn.SendQuery("SELECT sleep(5)", nil, "", protocol.StageComplete, nil, nil, nil); err != nil {
		t.Fatalf("sendQuery : %s", err.Error())
	}
	conn.SendCancel()

	packets := drain(t, conn)

	sawCancelLog := false
	for _, p := range packets {
		if p.Type != protocol.ServerLog {
			continue
		}
		for _, entry := range p.Logs {
			if entry.Text == "query was cancelled" {
				sawCancelLog = true
			}
		}
	}

	if !sawCancelLog {
		t.Errorf("Expected a cancellation log entry, got %v", packetTypes(packets))
	}
}

func TestServerMetadata(t *testing.T) {

	conn := quietConnection(t)

	name, major, _, _, revision := conn.ServerVersion()
	if name != protocol.ServerName {
		t.Errorf("Expected %s but got %s", protocol.ServerName, name)
	}
	if major != protocol.ServerVersionMajor {
		t.Errorf("Expected %d but got %d", protocol.ServerVersionMajor, major)
	}
	if revision != protocol.ServerRevision {
		t.Errorf("Expected %d but got %d", protocol.ServerRevision, revision)
	}

	if !conn.IsConnected() || !conn.CheckConnected() {
		t.Errorf("Expected the local connection to always be connected")
	}
	if conn.ServerDisplayName() == "" {
		t.Errorf("Expected a non-empty display name")
	}
}
