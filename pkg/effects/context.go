package effects

import (
	"github.com/goliatone/go-formstate/pkg/model"
	"github.com/goliatone/go-formstate/pkg/store"
)

// runContext is the EffectContext of one scheduled run. It reads from the
// snapshot taken when the run was scheduled.
type runContext struct {
	schema  *model.Schema
	desc    *model.EffectDescriptor
	change  store.Change
	snap    store.Snapshot
	trigger string
}

var _ model.EffectContext = (*runContext)(nil)

func (c *runContext) Trigger() string { return c.trigger }

func (c *runContext) Row() string { return c.change.Row }

func (c *runContext) Value() any { return c.change.Value }

// Get reads key from the snapshot. A column reference of the trigger's group
// resolves to the trigger row's cell.
func (c *runContext) Get(key string) (any, bool) {
	return c.snap.Get(c.resolve(key))
}

func (c *runContext) resolve(key string) string {
	if c.change.Row == "" {
		return key
	}
	k, err := model.ParseKey(key)
	if err != nil || !k.IsColumn() || k.Field != c.change.Field {
		return key
	}
	return model.CellKey(k.Field, c.change.Row, k.Child)
}

func (c *runContext) Values() map[string]any { return c.snap.Values() }

func (c *runContext) Params() map[string]string {
	out := make(map[string]string, len(c.desc.Params))
	for k, v := range c.desc.Params {
		out[k] = v
	}
	return out
}

func (c *runContext) Effected() []string {
	return append([]string(nil), c.desc.Effected...)
}

func (c *runContext) Field(ref string) (*model.Field, bool) {
	k, err := c.schema.LookupRef(ref)
	if err != nil {
		return nil, false
	}
	if k.IsColumn() {
		return c.schema.Child(k.Field, k.Child)
	}
	return c.schema.Field(k.Field)
}
