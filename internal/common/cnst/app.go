package cnst

const (
	AppName     = "tokengate"
	CommandName = "tokengate"
)
