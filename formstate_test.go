package formstate_test

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"

	formstate "github.com/goliatone/go-formstate"
)

const ordersYAML = `
forms:
  order:
    fields:
      - id: customer
        type: string
        required: true
      - id: lines
        type: rows
        minRow: 1
        children:
          - id: sku
            type: string
`

func TestNewFromFS(t *testing.T) {
	fsys := fstest.MapFS{"forms/orders.yaml": &fstest.MapFile{Data: []byte(ordersYAML)}}

	form, err := formstate.NewFromFS(fsys, "order")
	require.NoError(t, err)
	defer form.Close()

	rows, err := form.Rows("lines")
	require.NoError(t, err)
	require.Len(t, rows, 1)

	_, err = form.Submit(context.Background())
	var invalid *formstate.InvalidError
	require.ErrorAs(t, err, &invalid)
	require.Contains(t, invalid.Errors, "customer")

	require.NoError(t, form.Set("customer", "Ada"))
	snap, err := form.Submit(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Ada", snap.Values["customer"])

	_, err = formstate.NewFromFS(fsys, "missing")
	var unknown *formstate.UnknownFormError
	require.ErrorAs(t, err, &unknown)
	require.Equal(t, []string{"order"}, unknown.Available)
}

func TestClosedFormRejectsWrites(t *testing.T) {
	form, err := formstate.New(formstate.Definition{
		ID:     "tiny",
		Fields: []formstate.Field{{ID: "name", Type: "string"}},
	})
	require.NoError(t, err)
	require.NoError(t, form.Close())
	require.True(t, errors.Is(form.Set("name", "x"), formstate.ErrClosed))
}
