/*
Copyright 2025 LeadLoop Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package model

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"
)

func (c *CreateConversation) ValidateCreateConversation() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.LeadName, validation.Required),
		validation.Field(&c.LeadPhone, validation.Required),
	)
}

func (r *RecordInboundMessage) ValidateRecordInboundMessage() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Content, validation.Required),
	)
}

func (s *SendManualMessage) ValidateSendManualMessage() error {
	return validation.ValidateStruct(s,
		validation.Field(&s.Content, validation.Required),
	)
}

func (t *ToggleAI) ValidateToggleAI() error {
	return validation.ValidateStruct(t,
		validation.Field(&t.Enabled, validation.NotNil),
	)
}

func (o *CreateOffer) ValidateCreateOffer() error {
	return validation.ValidateStruct(o,
		validation.Field(&o.Lender, validation.Required),
		validation.Field(&o.Amount, validation.By(positiveDecimal)),
		validation.Field(&o.FactorRate, validation.By(positiveDecimal)),
		validation.Field(&o.TermMonths, validation.Required, validation.Min(1)),
	)
}

func positiveDecimal(value interface{}) error {
	d, ok := value.(decimal.Decimal)
	if !ok {
		return errors.New("invalid decimal value")
	}
	if d.LessThanOrEqual(decimal.Zero) {
		return errors.New("must be greater than zero")
	}
	return nil
}
