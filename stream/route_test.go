package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoute_DesignDocumentIsSkipped(t *testing.T) {
	ev := ChangeEvent{ID: "_design/views", Seq: "1-a", Doc: map[string]interface{}{"_id": "_design/views"}}

	d, err := Route(ev, RouteConfig{SourceDatabase: "orders"})
	require.NoError(t, err)
	assert.Equal(t, ActionSkip, d.Action)
	assert.Empty(t, d.Collection)
}

func TestRoute_CollectionPrecedence(t *testing.T) {
	tests := []struct {
		name string
		cfg  RouteConfig
		doc  map[string]interface{}
		want string
	}{
		{
			name: "document field wins",
			cfg:  RouteConfig{Collection: "static", CollectionField: "type", SourceDatabase: "src"},
			doc:  map[string]interface{}{"_id": "a", "type": "invoices"},
			want: "invoices",
		},
		{
			name: "document missing field falls back to static",
			cfg:  RouteConfig{Collection: "static", CollectionField: "type", SourceDatabase: "src"},
			doc:  map[string]interface{}{"_id": "a"},
			want: "static",
		},
		{
			name: "document missing field and no static falls back to source",
			cfg:  RouteConfig{CollectionField: "type", SourceDatabase: "src"},
			doc:  map[string]interface{}{"_id": "a"},
			want: "src",
		},
		{
			name: "no field configured uses static",
			cfg:  RouteConfig{Collection: "static", SourceDatabase: "src"},
			doc:  map[string]interface{}{"_id": "a", "type": "invoices"},
			want: "static",
		},
		{
			name: "nothing configured uses source database",
			cfg:  RouteConfig{SourceDatabase: "src"},
			doc:  map[string]interface{}{"_id": "a", "type": "invoices"},
			want: "src",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Route(ChangeEvent{ID: "a", Seq: "1", Doc: tt.doc}, tt.cfg)
			require.NoError(t, err)
			assert.Equal(t, ActionUpsert, d.Action)
			assert.Equal(t, tt.want, d.Collection)
			assert.Equal(t, "a", d.Key)
			assert.Equal(t, tt.doc, d.Doc)
		})
	}
}

func TestRoute_Delete(t *testing.T) {
	cfg := RouteConfig{SourceDatabase: "src"}

	t.Run("deletion marker in document", func(t *testing.T) {
		ev := ChangeEvent{ID: "a", Seq: "2", Doc: map[string]interface{}{"_id": "a", "_rev": "2-x", "_deleted": true}}
		d, err := Route(ev, cfg)
		require.NoError(t, err)
		assert.Equal(t, ActionDelete, d.Action)
		assert.Equal(t, "a", d.Key)
		assert.Equal(t, "src", d.Collection)
		assert.Nil(t, d.Doc)
	})

	t.Run("deleted flag without document", func(t *testing.T) {
		d, err := Route(ChangeEvent{ID: "b", Seq: "3", Deleted: true}, cfg)
		require.NoError(t, err)
		assert.Equal(t, ActionDelete, d.Action)
		assert.Equal(t, "b", d.Key)
	})
}

func TestRoute_StructuralErrors(t *testing.T) {
	tests := []struct {
		name string
		ev   ChangeEvent
		cfg  RouteConfig
	}{
		{
			name: "missing id",
			ev:   ChangeEvent{ID: "a", Seq: "1", Doc: map[string]interface{}{"name": "x"}},
		},
		{
			name: "non string id",
			ev:   ChangeEvent{ID: "a", Seq: "1", Doc: map[string]interface{}{"_id": 12.0}},
		},
		{
			name: "non string collection field",
			ev:   ChangeEvent{ID: "a", Seq: "1", Doc: map[string]interface{}{"_id": "a", "type": 7.0}},
			cfg:  RouteConfig{CollectionField: "type"},
		},
		{
			name: "no document on a live change",
			ev:   ChangeEvent{ID: "a", Seq: "1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Route(tt.ev, tt.cfg)
			require.Error(t, err)
			assert.Equal(t, KindStructural, KindOf(err))

			var se *Error
			require.ErrorAs(t, err, &se)
			assert.Equal(t, "a", se.ID)
			assert.Equal(t, "1", se.Seq)
		})
	}
}
