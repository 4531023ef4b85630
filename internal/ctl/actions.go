package ctl

// Indirection layer to allow stubbing in tests

var (
	fnListTools = listTools
	fnCallTool  = callTool
	fnPing      = ping
)
