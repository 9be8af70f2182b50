package postgres

import (
	"context"

	"gorm.io/gorm"
)

type txKey struct{}

// withTx makes repository writes made with ctx join tx.
func withTx(ctx context.Context, tx *gorm.DB) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// conn returns the transaction carried by ctx, or db when there is none.
func conn(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}
	return db.WithContext(ctx)
}
