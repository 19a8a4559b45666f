package main

import (
	"dataset_manager/manager/migrations"
	"dataset_manager/utils"
	"flag"
	"log"

	"gorm.io/gorm"
)

func main() {
	dbUri := flag.String("db_uri", "", "Database URI")
	flag.Parse()

	if *dbUri == "" {
		log.Fatalf("Missing --db_uri arg")
	}

	db, err := utils.OpenDb(*dbUri, &gorm.Config{})
	if err != nil {
		log.Fatalf("error opening database connection: %v", err)
	}

	if err := migrations.Migrate(db); err != nil {
		log.Fatalf("%v", err)
	}

	log.Println("migration completed successfully")
}
