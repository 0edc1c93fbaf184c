//go:build integration

package integration

import (
	"context"
	"log"
	"os"
	"testing"
)

var testDB *TestDB

func TestMain(m *testing.M) {
	ctx := context.Background()

	db, err := SetupTestDatabase(ctx)
	if err != nil {
		log.Fatalf("failed to set up test database: %v", err)
	}
	testDB = db

	code := m.Run()

	if err := testDB.Teardown(ctx); err != nil {
		log.Printf("failed to tear down test database: %v", err)
	}
	os.Exit(code)
}

// freshServer truncates every table and returns a new server
func freshServer(t *testing.T) *TestServer {
	t.Helper()
	if err := testDB.CleanupTables(context.Background()); err != nil {
		t.Fatalf("failed to clean tables: %v", err)
	}
	return NewTestServer(testDB.DB)
}
