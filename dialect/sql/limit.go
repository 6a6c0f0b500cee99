package sql

import (
	"strconv"

	"github.com/exo-run/exoquery/catalog"
)

// Limit and Offset are plain server-computed integers, not user text, so
// they're spliced as literals rather than bound params (matching the
// original's Limit/Offset, which are newtype wrappers around i64).
type Limit int64
type Offset int64

func (l Limit) Build(_ *catalog.Database, b *Builder) {
	b.PushStr("LIMIT ").PushStr(strconv.FormatInt(int64(l), 10))
}

func (o Offset) Build(_ *catalog.Database, b *Builder) {
	b.PushStr("OFFSET ").PushStr(strconv.FormatInt(int64(o), 10))
}
