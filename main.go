package main

import (
	"log"
)

// Build details, set with -ldflags "-X main.GitCommit=... -X main.GitTag=... -X main.BuildTime=...".
var (
	GitCommit string
	GitTag    string
	BuildTime string
)

//	@title			Books catalog API
//	@version		1.0
//	@description	CRUD api of the books catalog. The same rules apply to the web pages under /books/.
//	@BasePath		/
func main() {
	app, err := NewApp()
	if err != nil {
		log.Fatal("application failed to initialize: ", err)
	}
	if err = app.Run(); err != nil {
		log.Fatal("application exited. check logs for more details: ", err)
	}
}
