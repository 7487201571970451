package draw

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lottery_service/internal/shared/db/dbtest"
)

func TestValidate(t *testing.T) {
	require.NoError(t, Result{3, 1, 2, 4, 5, 6, 7, 8, 9, 10}.Validate())
	assert.ErrorIs(t, Result{1, 1, 2, 4, 5, 6, 7, 8, 9, 10}.Validate(), ErrMalformedResult)
	assert.ErrorIs(t, Result{0, 1, 2, 4, 5, 6, 7, 8, 9, 10}.Validate(), ErrMalformedResult)
	assert.ErrorIs(t, Result{11, 1, 2, 4, 5, 6, 7, 8, 9, 3}.Validate(), ErrMalformedResult)

	_, err := FromSlice([]int{1, 2, 3})
	assert.ErrorIs(t, err, ErrMalformedResult)
}

func TestRecordPersistence(t *testing.T) {
	repo := NewResultRepositoryImpl(dbtest.New(t, &Record{}))
	ctx := context.Background()
	r := Result{10, 9, 8, 7, 6, 5, 4, 3, 2, 1}

	_, err := repo.Get(ctx, "20250717001")
	require.ErrorIs(t, err, ErrResultNotFound)

	rec, err := NewRecord("20250717001", r, true, "single_member")
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, rec))

	other, err := NewRecord("20250717001", Result{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, false, "normal")
	require.NoError(t, err)
	require.ErrorIs(t, repo.Save(ctx, other), ErrResultExists)

	got, err := repo.Get(ctx, "20250717001")
	require.NoError(t, err)
	stored, err := got.Result()
	require.NoError(t, err)
	assert.Equal(t, r, stored)
	assert.True(t, got.Controlled)

	_, err = NewRecord("x", Result{1, 1, 1, 1, 1, 1, 1, 1, 1, 1}, false, "normal")
	require.ErrorIs(t, err, ErrMalformedResult)
}
