package dbctx

import (
	"context"

	"gorm.io/gorm"
)

// Context bundles a request/job context with an optional open transaction.
// Repo methods accept this instead of a bare context so callers can compose
// several repo calls into one transaction when an operation's failure
// semantics require it (§4.1: "all mutations single-transaction").
type Context struct {
	Ctx context.Context
	Tx  *gorm.DB
}

func Background() Context { return Context{Ctx: context.Background()} }

func New(ctx context.Context) Context { return Context{Ctx: ctx} }

func (c Context) WithTx(tx *gorm.DB) Context { return Context{Ctx: c.Ctx, Tx: tx} }
