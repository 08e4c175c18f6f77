package stream

import "fmt"

// Action is what the applier has to do for a routed change.
type Action int

const (
	ActionSkip Action = iota
	ActionUpsert
	ActionDelete
)

func (a Action) String() string {
	switch a {
	case ActionUpsert:
		return "upsert"
	case ActionDelete:
		return "delete"
	default:
		return "skip"
	}
}

const (
	idField      = "_id"
	deletedField = "_deleted"
)

// RouteConfig is the static routing configuration.
type RouteConfig struct {
	// Collection is a fixed destination collection.
	Collection string
	// CollectionField names a document field whose string value selects the
	// destination collection. It wins over Collection.
	CollectionField string
	// SourceDatabase is the fallback collection name.
	SourceDatabase string
}

// Decision is the outcome of routing one change.
type Decision struct {
	Action     Action
	Collection string
	Key        string
	Doc        map[string]interface{}
}

// Route decides what to do with ev. It has no side effects.
func Route(ev ChangeEvent, cfg RouteConfig) (Decision, error) {
	if ev.IsDesignDocument() {
		return Decision{Action: ActionSkip, Key: ev.ID}, nil
	}

	if ev.Doc == nil {
		if !ev.Deleted {
			return Decision{}, &Error{Kind: KindStructural, Op: "route", ID: ev.ID, Seq: ev.Seq,
				Err: fmt.Errorf("change carries no document")}
		}
		collection, err := collectionName(ev, cfg)
		if err != nil {
			return Decision{}, err
		}
		return Decision{Action: ActionDelete, Collection: collection, Key: ev.ID}, nil
	}

	key, err := documentID(ev)
	if err != nil {
		return Decision{}, err
	}

	collection, err := collectionName(ev, cfg)
	if err != nil {
		return Decision{}, err
	}

	if ev.Deleted || hasDeletionMarker(ev.Doc) {
		return Decision{Action: ActionDelete, Collection: collection, Key: key}, nil
	}

	return Decision{Action: ActionUpsert, Collection: collection, Key: key, Doc: ev.Doc}, nil
}

func documentID(ev ChangeEvent) (string, error) {
	raw, ok := ev.Doc[idField]
	if !ok {
		return "", &Error{Kind: KindStructural, Op: "route", ID: ev.ID, Seq: ev.Seq,
			Err: fmt.Errorf("document has no %s field", idField)}
	}
	id, ok := raw.(string)
	if !ok || id == "" {
		return "", &Error{Kind: KindStructural, Op: "route", ID: ev.ID, Seq: ev.Seq,
			Err: fmt.Errorf("document %s is %T, want non-empty string", idField, raw)}
	}
	return id, nil
}

// collectionName resolves the target collection: document field, then the
// configured collection, then the source database name.
func collectionName(ev ChangeEvent, cfg RouteConfig) (string, error) {
	if cfg.CollectionField != "" && ev.Doc != nil {
		if raw, ok := ev.Doc[cfg.CollectionField]; ok {
			name, ok := raw.(string)
			if !ok {
				return "", &Error{Kind: KindStructural, Op: "route", ID: ev.ID, Seq: ev.Seq,
					Err: fmt.Errorf("collection field %q is %T, want string", cfg.CollectionField, raw)}
			}
			return name, nil
		}
	}
	if cfg.Collection != "" {
		return cfg.Collection, nil
	}
	return cfg.SourceDatabase, nil
}

func hasDeletionMarker(doc map[string]interface{}) bool {
	_, ok := doc[deletedField]
	return ok
}
