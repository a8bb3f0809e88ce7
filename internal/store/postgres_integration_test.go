// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tollgate Contributors

//go:build integration

package store_test

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/tollgate/tollgate/internal/store"
)

var _ = Describe("Connect", Ordered, func() {
	var (
		ctx       context.Context
		container *postgres.PostgresContainer
		connStr   string
		pool      *pgxpool.Pool
	)

	BeforeAll(func() {
		ctx = context.Background()
		var err error
		container, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("tollgate_test"),
			postgres.WithUsername("tollgate"),
			postgres.WithPassword("tollgate"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second),
			),
		)
		Expect(err).NotTo(HaveOccurred())

		connStr, err = container.ConnectionString(ctx, "sslmode=disable")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterAll(func() {
		if pool != nil {
			pool.Close()
		}
		if container != nil {
			_ = container.Terminate(ctx)
		}
	})

	It("returns a live pool", func() {
		var err error
		pool, err = store.Connect(ctx, connStr, store.DefaultConnectOptions())
		Expect(err).NotTo(HaveOccurred())
		Expect(pool.Ping(ctx)).To(Succeed())
	})

	It("serves the migrated schema", func() {
		migrator, err := store.NewMigrator(connStr)
		Expect(err).NotTo(HaveOccurred())
		defer func() { _ = migrator.Close() }()
		Expect(migrator.Up()).To(Succeed())

		var tables int
		err = pool.QueryRow(ctx, `SELECT COUNT(*) FROM information_schema.tables
			WHERE table_schema = 'public'
			AND table_name IN ('users', 'access_tokens', 'password_resets')`).Scan(&tables)
		Expect(err).NotTo(HaveOccurred())
		Expect(tables).To(Equal(3))
	})

	It("cascades token deletion when a user is removed", func() {
		_, err := pool.Exec(ctx, `INSERT INTO users (id, name, email, password_hash)
			VALUES ('01J0000000000000000000000C', 'Grace', 'grace@example.com', 'x')`)
		Expect(err).NotTo(HaveOccurred())
		_, err = pool.Exec(ctx, `INSERT INTO access_tokens (id, user_id, label, secret_hash)
			VALUES ('01J0000000000000000000000D', '01J0000000000000000000000C', 'auth', 'h')`)
		Expect(err).NotTo(HaveOccurred())

		_, err = pool.Exec(ctx, `DELETE FROM users WHERE id = '01J0000000000000000000000C'`)
		Expect(err).NotTo(HaveOccurred())

		var remaining int
		Expect(pool.QueryRow(ctx, `SELECT COUNT(*) FROM access_tokens`).Scan(&remaining)).To(Succeed())
		Expect(remaining).To(BeZero())
	})
})
