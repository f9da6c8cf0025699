package gateway

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/smallbiznis/sygmef/internal/invoice/domain"
)

type invoicePayload struct {
	IFU       string           `json:"ifu"`
	AIB       string           `json:"aib,omitempty"`
	Type      string           `json:"type"`
	Reference string           `json:"reference,omitempty"`
	Items     []itemPayload    `json:"items"`
	Client    *clientPayload   `json:"client,omitempty"`
	Operator  operatorPayload  `json:"operator"`
	Payment   []paymentPayload `json:"payment,omitempty"`
}

type itemPayload struct {
	Code              string      `json:"code,omitempty"`
	Name              string      `json:"name"`
	Price             int64       `json:"price"`
	Quantity          json.Number `json:"quantity"`
	TaxGroup          string      `json:"taxGroup"`
	TaxSpecific       *int64      `json:"taxSpecific,omitempty"`
	OriginalPrice     *int64      `json:"originalPrice,omitempty"`
	PriceModification string      `json:"priceModification,omitempty"`
}

type clientPayload struct {
	IFU     string `json:"ifu,omitempty"`
	Name    string `json:"name,omitempty"`
	Contact string `json:"contact,omitempty"`
	Address string `json:"address,omitempty"`
}

type operatorPayload struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

type paymentPayload struct {
	Name   string `json:"name"`
	Amount int64  `json:"amount"`
}

func toInvoicePayload(inv domain.NormalizedInvoice) invoicePayload {
	payload := invoicePayload{
		IFU:       inv.IFU,
		AIB:       string(inv.AIB),
		Type:      string(inv.Kind),
		Reference: inv.Reference,
		Items:     make([]itemPayload, 0, len(inv.Items)),
		Operator:  operatorPayload{ID: inv.Operator.ID, Name: inv.Operator.Name},
	}

	for _, item := range inv.Items {
		payload.Items = append(payload.Items, itemPayload{
			Code:              item.Code,
			Name:              item.Name,
			Price:             item.Price,
			Quantity:          json.Number(item.Quantity.String()),
			TaxGroup:          string(item.TaxGroup),
			TaxSpecific:       item.TaxSpecific,
			OriginalPrice:     item.OriginalPrice,
			PriceModification: item.PriceModification,
		})
	}

	if inv.Client != nil {
		payload.Client = &clientPayload{
			IFU:     inv.Client.IFU,
			Name:    inv.Client.Name,
			Contact: inv.Client.Contact,
			Address: inv.Client.Address,
		}
	}

	for _, p := range inv.Payments {
		payload.Payment = append(payload.Payment, paymentPayload{
			Name:   string(p.Method),
			Amount: p.Amount,
		})
	}
	return payload
}

// errorBody is the remote failure document. errorCode has been observed both
// as a JSON number and as a string.
type errorBody struct {
	ErrorCode flexibleCode `json:"errorCode"`
	ErrorDesc string       `json:"errorDesc"`
	Message   string       `json:"message"`
}

type flexibleCode struct {
	Value int
	Set   bool
}

func (c *flexibleCode) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "" || raw == "null" {
		return nil
	}
	raw = strings.Trim(raw, `"`)
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		// Non-numeric codes are kept as "present but unknown".
		c.Set = true
		return nil
	}
	c.Value = value
	c.Set = true
	return nil
}

func decodeErrorBody(raw []byte) (errorBody, bool) {
	if len(raw) == 0 {
		return errorBody{}, false
	}
	var body errorBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return errorBody{}, false
	}
	return body, true
}

// decodeDocument turns any JSON document into a map. Arrays are exposed
// under "items".
func decodeDocument(raw []byte) (map[string]any, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	switch v := doc.(type) {
	case map[string]any:
		return v, nil
	case []any:
		return map[string]any{"items": v}, nil
	case nil:
		return map[string]any{}, nil
	default:
		return map[string]any{"value": v}, nil
	}
}
