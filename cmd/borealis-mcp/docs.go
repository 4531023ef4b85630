package main

// General API documentation for swaggo. Run `make swagger-gen` to regenerate.
//
// @title           borealis-mcp API
// @version         1.0
// @description     MCP streamable HTTP surface bridging tool calls into a host application.
//
// @contact.name   borealis maintainers
// @contact.url    https://github.com/your-org/borealis
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
