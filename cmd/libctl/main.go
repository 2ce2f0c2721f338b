// libctl is the admin command-line tool for the library backend. It
// talks directly to the database and cache, mirroring the API
// operations for staff use on the host.
package main

import "github.com/openlib/library-backend/cmd/libctl/commands"

func main() {
	commands.Execute()
}
