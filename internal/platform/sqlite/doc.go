// Package sqlite stores retry declarations in an embedded SQLite database.
//
// The schema is embedded in the binary and applied with golang-migrate when a
// catalog is opened:
//
//	cat, info, err := sqlite.OpenCatalog(ctx, "data/catalog.db")
//	if err != nil {
//		return err
//	}
//	defer cat.Close()
//
//	table, err := cat.Load(ctx)
//	if err != nil {
//		return err
//	}
//	err = declare.Apply(table, declare.Target{Registry: reg, Executors: execs})
//
// Catalog.Save upserts the rows of a declare.Table in one transaction, so a YAML
// policy file can be imported once and edited in the database afterwards.
// sqlite.MemoryPath opens a private in-memory catalog for tests.
package sqlite
