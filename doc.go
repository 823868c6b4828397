/*
Package miniserver is a small HTTP/1.1 server built on a fixed pool of
worker goroutines.

Each accepted connection becomes one job on the pool. The job reads a
request, hands it to the handler, writes the response and, unless the
client asked to close, loops for the next request on the same connection.
Only GET and POST are understood, and responses carry one of 200 OK,
201 Created or 404 Not Found. A request that cannot be parsed is answered
with a 404 naming the problem, after which the connection is closed.

Features

  - Request parser that works on a byte slice or a live stream
  - Response serializer with automatic Content-Length
  - Fixed-size worker pool with FIFO dispatch and panic isolation
  - Keep-alive connection driver with read and write timeouts
  - Prefix router with trailing wildcards
  - Middleware pipeline: recovery, access logging, metrics, gzip
  - Structured logging with zerolog
  - OpenTelemetry metrics

Quick Start

Basic usage example:

	package main

	import (
	    "github.com/searchktools/mini-server/app"
	    "github.com/searchktools/mini-server/config"
	    "github.com/searchktools/mini-server/core/http"
	    "github.com/searchktools/mini-server/core/router"
	)

	func main() {
	    cfg := config.New()
	    application, err := app.New(cfg)
	    if err != nil {
	        panic(err)
	    }

	    application.Router().GET("/hello", func(req *http.Request, _ router.Params) (*http.Response, error) {
	        return http.OK().SetBodyString("Hello, World!"), nil
	    })

	    application.Run()
	}

Built-in routes: GET /, GET /echo/{text}, GET /user-agent,
GET and POST /files/{name} (under -directory) and GET /stats.

Modules

  - app: Application wiring, built-in routes, signal handling
  - config: Defaults, JSON file, MINI_* environment and flags
  - core: Connection driver
  - core/http: Request parser, response serializer, headers
  - core/router: Method and path dispatch
  - core/middleware: Middleware pipeline
  - core/pools: Worker pool and buffer pools
  - core/observability: OpenTelemetry instruments
*/
package miniserver
