// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

// Package pgutil contains helpers for temporary postgres schemas.
package pgutil

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/url"
	"strconv"
	"strings"

	"github.com/zeebo/errs"

	"github.com/mozilla/marketplace/private/tagsql"
)

// CreateRandomTestingSchemaName creates a random schema name string.
func CreateRandomTestingSchemaName(n int) string {
	data := make([]byte, n)
	_, _ = rand.Read(data)
	return hex.EncodeToString(data)
}

// ConnstrWithSchema adds schema to a connection string. The pgx driver
// passes search_path on to the server.
func ConnstrWithSchema(connstr, schema string) string {
	if strings.Contains(connstr, "?") {
		return connstr + "&search_path=" + url.QueryEscape(QuoteSchema(schema))
	}
	return connstr + "?search_path=" + url.QueryEscape(QuoteSchema(schema))
}

// QuoteSchema quotes schema so it can be used in a query.
func QuoteSchema(schema string) string {
	return strconv.Quote(schema)
}

// CreateSchema creates a schema if it doesn't exist.
func CreateSchema(ctx context.Context, db tagsql.Queryer, schema string) error {
	_, err := db.ExecContext(ctx, `CREATE SCHEMA IF NOT EXISTS `+QuoteSchema(schema)+`;`)
	return errs.Wrap(err)
}

// DropSchema drops the named schema.
func DropSchema(ctx context.Context, db tagsql.Queryer, schema string) error {
	_, err := db.ExecContext(ctx, `DROP SCHEMA `+QuoteSchema(schema)+` CASCADE;`)
	return errs.Wrap(err)
}

// TempSchema is a uniquely named schema dropped on Close.
type TempSchema struct {
	// ConnStr connects to the schema.
	ConnStr string
	// Schema is the schema name.
	Schema string

	db tagsql.DB
}

// OpenUnique creates a uniquely named schema on the postgres server at
// connstr.
func OpenUnique(ctx context.Context, connstr string, prefix string) (*TempSchema, error) {
	db, err := tagsql.Open(ctx, connstr)
	if err != nil {
		return nil, err
	}

	schema := prefix + "-" + CreateRandomTestingSchemaName(8)
	if err := CreateSchema(ctx, db, schema); err != nil {
		return nil, errs.Combine(err, db.Close())
	}
	return &TempSchema{
		ConnStr: ConnstrWithSchema(connstr, schema),
		Schema:  schema,
		db:      db,
	}, nil
}

// Close drops the schema.
func (temp *TempSchema) Close() error {
	return errs.Combine(DropSchema(context.Background(), temp.db, temp.Schema), temp.db.Close())
}
