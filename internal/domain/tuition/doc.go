// Package tuition содержит леджер оплаты обучения.
//
// Запись леджера (Entry) однозначно определяется парой (номер студента, семестр)
// и хранит сумму начисления и оплаченную сумму. Остаток и статус не хранятся
// как независимое состояние, а всегда вычисляются:
//
//	Balance = Total - Paid
//	Paid == 0          -> UNPAID
//	0 < Paid < Total   -> PARTIAL
//	Paid == Total      -> PAID
//
// Все изменения записи выполняются через Repository.Mutate, который
// гарантирует эксклюзивный доступ к ключу на время чтения-изменения-записи.
package tuition
