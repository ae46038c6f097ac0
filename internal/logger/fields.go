package logger

// Standard field keys for structured logging. Use these consistently
// across log statements so archive runs can be grepped by channel,
// team, or file.
const (
	KeyChannel = "channel" // channel internal name
	KeyTeam    = "team"    // team internal name
	KeyUser    = "user"    // username
	KeyPath    = "path"    // file or directory path
	KeyCount   = "count"   // post / entity count
	KeySize    = "size"    // byte size
	KeyStatus  = "status"  // HTTP status code
	KeyError   = "error"   // error value
)
