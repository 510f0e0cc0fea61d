package sqlstore_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/okian/duel/internal/adapters/repository"
	"github.com/okian/duel/internal/adapters/repository/repositorytest"
	"github.com/okian/duel/internal/adapters/repository/sqlstore"
	. "github.com/smartystreets/goconvey/convey"
)

var dbSeq atomic.Int64

func newSQLite(t *testing.T) repository.Store {
	t.Helper()
	// A named shared-cache database keeps each test path isolated.
	dsn := fmt.Sprintf("file:duel%d?mode=memory&cache=shared", dbSeq.Add(1))
	s, err := sqlstore.Open(context.Background(), sqlstore.DriverSQLite, dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	return s
}

func TestSQLiteStore(t *testing.T) {
	repositorytest.Run(t, newSQLite)
}

func TestOpen(t *testing.T) {
	Convey("Given an unsupported driver", t, func() {
		_, err := sqlstore.Open(context.Background(), "oracle", "dsn")

		Convey("Then Open should refuse it", func() {
			So(err, ShouldWrap, repository.ErrUnknownBackend)
		})
	})

	Convey("Given an open sqlite database", t, func() {
		ctx := context.Background()
		dsn := "file:duel-reopen?mode=memory&cache=shared"
		first, err := sqlstore.Open(ctx, sqlstore.DriverSQLite, dsn)
		So(err, ShouldBeNil)
		defer first.Close(ctx)

		Convey("When a second store opens the same database", func() {
			second, err := sqlstore.Open(ctx, sqlstore.DriverSQLite, dsn)

			Convey("Then schema creation should be idempotent", func() {
				So(err, ShouldBeNil)
				So(second.Backend(), ShouldEqual, sqlstore.DriverSQLite)
				So(second.Close(ctx), ShouldBeNil)
			})
		})
	})
}
