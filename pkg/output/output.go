package output

import (
	"io"

	"go.uber.org/multierr"

	"github.com/ericogr/pisensor-mqtt/pkg/telemetry"
)

// Output publishes telemetry records somewhere.
type Output interface {
	Publish(rec telemetry.Record) error
	Close() error
}

// CloseAll closes every closer and combines the errors.
func CloseAll[T io.Closer](cs ...T) error {
	var err error
	for _, c := range cs {
		err = multierr.Append(err, c.Close())
	}
	return err
}

// helper constructors are in subpackages
