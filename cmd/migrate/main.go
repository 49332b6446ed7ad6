// Command migrate applies the SQL migrations. The database URL comes from
// DATABASE_URL or the -database flag.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/joho/godotenv/autoload"
)

func main() {
	var (
		path     = flag.String("path", "migrations", "migrations directory")
		database = flag.String("database", os.Getenv("DATABASE_URL"), "database URL")
	)
	flag.Parse()

	if *database == "" {
		log.Fatal("database URL required (set DATABASE_URL or -database)")
	}

	m, err := migrate.New("file://"+*path, *database)
	if err != nil {
		log.Fatalf("open migrations: %v", err)
	}
	defer func() { _, _ = m.Close() }()

	command := flag.Arg(0)
	if command == "" {
		command = "up"
	}

	switch command {
	case "up":
		err = m.Up()
	case "down":
		err = m.Steps(-1)
	case "drop":
		err = m.Drop()
	case "version":
		version, dirty, verr := m.Version()
		if verr != nil {
			log.Fatalf("version: %v", verr)
		}
		fmt.Printf("version=%d dirty=%v\n", version, dirty)
		return
	case "force":
		version, perr := strconv.Atoi(flag.Arg(1))
		if perr != nil {
			log.Fatalf("force needs a numeric version, got %q", flag.Arg(1))
		}
		err = m.Force(version)
	default:
		log.Fatalf("unknown command %q (want up, down, drop, version or force)", command)
	}

	if errors.Is(err, migrate.ErrNoChange) {
		fmt.Println("no change")
		return
	}
	if err != nil {
		log.Fatalf("%s: %v", command, err)
	}
	fmt.Println(command, "done")
}
