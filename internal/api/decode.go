package api

import (
	"io"
	"net/http"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

const maxBodyBytes = 1 << 20

// errInvalidBody marks a body that is not well-formed JSON of the expected
// top-level shape.
var errInvalidBody = errors.New("invalid request body")

// typeErrors collects per-field type mismatches found while decoding, in the
// same "<field>: <message>" form the validator produces.
type typeErrors []string

func (t *typeErrors) add(field string, want string, got jx.Type) {
	*t = append(*t, field+": Expected "+want+", received "+typeName(got))
}

func typeName(t jx.Type) string {
	switch t {
	case jx.String:
		return "string"
	case jx.Number:
		return "number"
	case jx.Bool:
		return "boolean"
	case jx.Null:
		return "null"
	case jx.Array:
		return "array"
	case jx.Object:
		return "object"
	default:
		return "unknown"
	}
}

// readBody reads the request body up to maxBodyBytes.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, errors.Wrap(errInvalidBody, err.Error())
	}
	if len(data) == 0 {
		return nil, errInvalidBody
	}
	return data, nil
}

// decodeObject decodes a JSON object, calling field for each key.
func decodeObject(data []byte, field func(d *jx.Decoder, key string) error) error {
	d := jx.DecodeBytes(data)
	if d.Next() != jx.Object {
		return errInvalidBody
	}
	if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		return field(d, string(key))
	}); err != nil {
		return errors.Wrap(errInvalidBody, err.Error())
	}
	return nil
}

func readString(d *jx.Decoder, field string, errs *typeErrors) (*string, error) {
	if t := d.Next(); t != jx.String {
		errs.add(field, "string", t)
		return nil, d.Skip()
	}
	s, err := d.Str()
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func readInt(d *jx.Decoder, field string, errs *typeErrors) (*int, error) {
	if t := d.Next(); t != jx.Number {
		errs.add(field, "number", t)
		return nil, d.Skip()
	}
	n, err := d.Num()
	if err != nil {
		return nil, err
	}
	if !n.IsInt() {
		*errs = append(*errs, field+": Expected integer, received float")
		return nil, nil
	}
	v, err := strconv.Atoi(n.String())
	if err != nil {
		*errs = append(*errs, field+": Number is out of range")
		return nil, nil
	}
	return &v, nil
}

func readDecimal(d *jx.Decoder, field string, errs *typeErrors) (*decimal.Decimal, error) {
	if t := d.Next(); t != jx.Number {
		errs.add(field, "number", t)
		return nil, d.Skip()
	}
	n, err := d.Num()
	if err != nil {
		return nil, err
	}
	v, err := decimal.NewFromString(n.String())
	if err != nil {
		*errs = append(*errs, field+": Invalid number")
		return nil, nil
	}
	return &v, nil
}

type registerRequest struct {
	Username *string `json:"username" validate:"required,min=3,max=30,alphanum"`
	Email    *string `json:"email" validate:"required,email"`
	Password *string `json:"password" validate:"required,min=8,bcrypt_len,has_upper,has_lower,has_digit,has_special"`
}

func decodeRegister(data []byte) (registerRequest, typeErrors, error) {
	var (
		req  registerRequest
		errs typeErrors
	)
	err := decodeObject(data, func(d *jx.Decoder, key string) (err error) {
		switch key {
		case "username":
			req.Username, err = readString(d, key, &errs)
		case "email":
			req.Email, err = readString(d, key, &errs)
		case "password":
			req.Password, err = readString(d, key, &errs)
		default:
			err = d.Skip()
		}
		return err
	})
	return req, errs, err
}

type loginRequest struct {
	Email    *string `json:"email" validate:"required,email"`
	Password *string `json:"password" validate:"required,min=1"`
}

func decodeLogin(data []byte) (loginRequest, typeErrors, error) {
	var (
		req  loginRequest
		errs typeErrors
	)
	err := decodeObject(data, func(d *jx.Decoder, key string) (err error) {
		switch key {
		case "email":
			req.Email, err = readString(d, key, &errs)
		case "password":
			req.Password, err = readString(d, key, &errs)
		default:
			err = d.Skip()
		}
		return err
	})
	return req, errs, err
}

// productFields is shared by create and update bodies; the validation tags
// differ between the two.
type productFields struct {
	Name        *string
	Description *string
	Price       *decimal.Decimal
	Stock       *int
	Category    *string
}

func decodeProductFields(data []byte) (productFields, typeErrors, error) {
	var (
		f    productFields
		errs typeErrors
	)
	err := decodeObject(data, func(d *jx.Decoder, key string) (err error) {
		switch key {
		case "name":
			f.Name, err = readString(d, key, &errs)
		case "description":
			f.Description, err = readString(d, key, &errs)
		case "price":
			f.Price, err = readDecimal(d, key, &errs)
		case "stock":
			f.Stock, err = readInt(d, key, &errs)
		case "category":
			f.Category, err = readString(d, key, &errs)
		default:
			err = d.Skip()
		}
		return err
	})
	return f, errs, err
}

type createProductRequest struct {
	Name        *string          `json:"name" validate:"required,min=3,max=100"`
	Description *string          `json:"description" validate:"required,min=10"`
	Price       *decimal.Decimal `json:"price" validate:"required,gt=0,max=9999999999.99"`
	Stock       *int             `json:"stock" validate:"required,min=0,max=2147483647"`
	Category    *string          `json:"category" validate:"required,min=1"`
}

type updateProductRequest struct {
	Name        *string          `json:"name" validate:"omitempty,min=3,max=100"`
	Description *string          `json:"description" validate:"omitempty,min=10"`
	Price       *decimal.Decimal `json:"price" validate:"omitempty,gt=0,max=9999999999.99"`
	Stock       *int             `json:"stock" validate:"omitempty,min=0,max=2147483647"`
	Category    *string          `json:"category" validate:"omitempty,min=1"`
}

type orderLineRequest struct {
	ProductID *string `json:"productId" validate:"required,uuid"`
	Quantity  *int    `json:"quantity" validate:"required,gt=0,max=2147483647"`

	// malformed is set when the element is not an object at all.
	malformed bool
}

// decodeOrderLines decodes the order body, a JSON array of lines. Type
// errors are reported with the element index as path prefix.
func decodeOrderLines(data []byte) ([]orderLineRequest, typeErrors, error) {
	d := jx.DecodeBytes(data)
	if d.Next() != jx.Array {
		return nil, nil, errInvalidBody
	}

	var (
		lines []orderLineRequest
		errs  typeErrors
	)
	err := d.Arr(func(d *jx.Decoder) error {
		idx := strconv.Itoa(len(lines))
		var line orderLineRequest
		if t := d.Next(); t != jx.Object {
			errs.add(idx, "object", t)
			line.malformed = true
			lines = append(lines, line)
			return d.Skip()
		}
		err := d.ObjBytes(func(d *jx.Decoder, key []byte) (err error) {
			switch string(key) {
			case "productId":
				line.ProductID, err = readString(d, idx+".productId", &errs)
			case "quantity":
				line.Quantity, err = readInt(d, idx+".quantity", &errs)
			default:
				err = d.Skip()
			}
			return err
		})
		lines = append(lines, line)
		return err
	})
	if err != nil {
		return nil, nil, errors.Wrap(errInvalidBody, err.Error())
	}
	return lines, errs, nil
}
