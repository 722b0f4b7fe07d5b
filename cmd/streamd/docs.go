package main

// General API documentation for swaggo. Run `make swagger-gen` to generate docs.
//
// @title           streamd API
// @version         1.0
// @description     HTTP API for resumable, at-least-once streamed LLM completions.
//
// @contact.name   streamd maintainers
// @contact.url    https://github.com/your-org/streamd
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
