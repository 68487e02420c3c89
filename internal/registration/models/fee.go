package models

import (
	"fmt"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// Fee is the registration fee fixed at submission. It is stored as a decimal
// string so amounts never pass through binary floating point.
type Fee struct {
	decimal.Decimal
}

func NewFee(d decimal.Decimal) Fee {
	return Fee{Decimal: d}
}

func (f Fee) MarshalBSONValue() (bsontype.Type, []byte, error) {
	return bson.MarshalValue(f.Decimal.String())
}

func (f *Fee) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	if t == bsontype.Null || t == bsontype.Undefined {
		f.Decimal = decimal.Zero
		return nil
	}
	var s string
	raw := bson.RawValue{Type: t, Value: data}
	if err := raw.Unmarshal(&s); err != nil {
		return fmt.Errorf("decode fee: %w", err)
	}
	if s == "" {
		f.Decimal = decimal.Zero
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("decode fee: %w", err)
	}
	f.Decimal = d
	return nil
}
