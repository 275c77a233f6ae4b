package tuition

import (
	"time"

	"github.com/campus-finance/tuition-hub/internal/domain/shared"
)

// PaymentStatusSuccessful - единственный статус записанного платежа.
// Неуспешные платежи не записываются.
const PaymentStatusSuccessful = "Successful"

// Payment - неизменяемая запись о применённом платеже.
type Payment struct {
	// Reference - уникальная ссылка для сверки, не бизнес-ключ.
	Reference string

	StudentNo string
	Term      string

	// Amount - сумма платежа, всегда больше нуля.
	Amount shared.Money

	// Status - всегда PaymentStatusSuccessful.
	Status string

	// PaidAt - время применения платежа.
	PaidAt time.Time
}

// Key возвращает ключ записи леджера, к которой относится платёж.
func (p *Payment) Key() Key {
	return Key{StudentNo: p.StudentNo, Term: p.Term}
}
