package protocol

// Stage is the requested terminal processing stage of a query, fixed at
// sendQuery time.
type Stage uint64

const (
	StageFetchColumns       Stage = 0
	StageWithMergeableState Stage = 1
	StageComplete           Stage = 2
)

func (s Stage) String() string {
	switch s {
	case StageFetchColumns:
		return "FetchColumns"
	case StageWithMergeableState:
		return "WithMergeableState"
	case StageComplete:
		return "Complete"
	default:
		return "Unknown"
	}
}

// Build metadata of the local engine, never varies per query.
const (
	ServerName         = "local-query-driver"
	ServerVersionMajor = 1
	ServerVersionMinor = 2
	ServerVersionPatch = 0
	ServerRevision     = 54468
)
