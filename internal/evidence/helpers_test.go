package evidence

import (
	"context"

	"github.com/examwatch/examwatch/internal/datastore"
)

type saverFunc func() (uint, error)

func (f saverFunc) SaveEvent(context.Context, *datastore.EventInput) (uint, error) { return f() }
