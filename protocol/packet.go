package protocol

import (
	"github.com/dot5enko/local-query-driver/block"
)

// Server-side packet codes. These match the networked protocol values
// bit-for-bit, the local driver never serializes them.
const (
	ServerHello               uint64 = 0
	ServerData                uint64 = 1
	ServerException           uint64 = 2
	ServerProgress            uint64 = 3
	ServerPong                uint64 = 4
	ServerEndOfStream         uint64 = 5
	ServerProfileInfo         uint64 = 6
	ServerTotals              uint64 = 7
	ServerExtremes            uint64 = 8
	ServerTablesStatus        uint64 = 9
	ServerLog                 uint64 = 10
	ServerTableColumns        uint64 = 11
	ServerPartUUIDs           uint64 = 12
	ServerReadTaskRequest     uint64 = 13
	ServerProfileEvents       uint64 = 14
	ServerMergeTreeReadTask   uint64 = 16
	ServerTimezoneUpdate      uint64 = 17
)

// Client-side packet codes, kept for interface symmetry with the
// networked counterpart.
const (
	ClientHello                 uint64 = 0
	ClientQuery                 uint64 = 1
	ClientData                  uint64 = 2
	ClientCancel                uint64 = 3
	ClientPing                  uint64 = 4
	ClientTablesStatusRequest   uint64 = 5
	ClientKeepAlive             uint64 = 6
	ClientScalar                uint64 = 7
	ClientIgnoredPartUUIDs      uint64 = 8
	ClientReadTaskResponse      uint64 = 9
	ClientMergeTreeReadTaskResp uint64 = 10
)

func PacketName(typ uint64) string {
	switch typ {
	case ServerHello:
		return "Hello"
	case ServerData:
		return "Data"
	case ServerException:
		return "Exception"
	case ServerProgress:
		return "Progress"
	case ServerPong:
		return "Pong"
	case ServerEndOfStream:
		return "EndOfStream"
	case ServerProfileInfo:
		return "ProfileInfo"
	case ServerTotals:
		return "Totals"
	case ServerExtremes:
		return "Extremes"
	case ServerLog:
		return "Log"
	case ServerProfileEvents:
		return "ProfileEvents"
	case ServerMergeTreeReadTask:
		return "MergeTreeReadTask"
	default:
		return "Unknown"
	}
}

// Packet is one unit of the shared client/server vocabulary produced by
// the local driver without serialization. Exactly the payload fields
// relevant to Type are populated.
type Packet struct {
	Type uint64

	Block         *block.Block
	Exception     *Exception
	Progress      *ProgressValues
	ProfileInfo   *ProfileInfo
	ProfileEvents []ProfileEventEntry
	Logs          []LogEntry
}

func (p *Packet) TypeName() string {
	return PacketName(p.Type)
}
