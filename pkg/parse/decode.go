package parse

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Decode copies decoded fields into out, converting scalar strings to the
// target field types.
func Decode(fields map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(fields); err != nil {
		return fmt.Errorf("decode fields: %w", err)
	}
	return nil
}
