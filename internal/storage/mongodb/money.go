package mongodb

import (
	"fmt"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// money is written as Decimal128 but also reads the plain numbers older
// deployments stored for amounts and budgets.
type money struct {
	decimal.Decimal
}

func (m money) MarshalBSONValue() (bsontype.Type, []byte, error) {
	dec, err := toDecimal128(m.Decimal)
	if err != nil {
		return 0, nil, err
	}
	return bson.MarshalValue(dec)
}

func (m *money) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	rv := bson.RawValue{Type: t, Value: data}
	switch t {
	case bson.TypeDecimal128:
		d, err := fromDecimal128(rv.Decimal128())
		if err != nil {
			return fmt.Errorf("decode amount: %w", err)
		}
		m.Decimal = d
	case bson.TypeDouble:
		m.Decimal = decimal.NewFromFloat(rv.Double()).Round(2)
	case bson.TypeInt32:
		m.Decimal = decimal.NewFromInt32(rv.Int32())
	case bson.TypeInt64:
		m.Decimal = decimal.NewFromInt(rv.Int64())
	case bson.TypeNull:
		m.Decimal = decimal.Zero
	default:
		return fmt.Errorf("decode amount: unsupported BSON type %s", t)
	}
	return nil
}
