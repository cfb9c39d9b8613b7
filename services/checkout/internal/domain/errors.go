// Package domain содержит бизнес-сущности checkout: корзину, купоны,
// результат расчёта цены, заказ с попытками оплаты и доменные ошибки.
package domain

import "errors"

// Ошибки ввода: отклоняются до создания заказа.
var (
	// ErrEmptyCart — корзина без позиций.
	ErrEmptyCart = errors.New("корзина пуста")

	// ErrInvalidCart — позиция корзины нарушает инварианты (количество, цена, скидка).
	ErrInvalidCart = errors.New("некорректная корзина")

	// ErrInvalidCoupon — купон не найден, неактивен или истёк.
	ErrInvalidCoupon = errors.New("купон недействителен")

	// ErrCouponNotApplicable — купон не применим ни к одной позиции корзины.
	ErrCouponNotApplicable = errors.New("купон не применим к товарам в корзине")

	// ErrInvalidUserID — пустой идентификатор пользователя.
	ErrInvalidUserID = errors.New("некорректный идентификатор пользователя")
)

// Ошибки платёжного шлюза: вызывающий может повторить запрос.
var (
	// ErrGatewayUnavailable — шлюз недоступен, не ответил вовремя или отклонил запрос.
	ErrGatewayUnavailable = errors.New("платёжный шлюз недоступен")
)

// Ошибки безопасности: запрос отклоняется, состояние заказа не меняется.
var (
	// ErrInvalidSignature — подпись не совпала с ожидаемой.
	ErrInvalidSignature = errors.New("неверная подпись платежа")

	// ErrAmountMismatch — сумма платежа не совпадает с зафиксированной суммой заказа.
	ErrAmountMismatch = errors.New("сумма платежа не совпадает с суммой заказа")

	// ErrManualReview — платёж принят шлюзом, но применить его к заказу нельзя.
	ErrManualReview = errors.New("платёж передан на ручную проверку")
)

// Ошибки поиска.
var (
	// ErrOrderNotFound — заказ не найден по внутреннему идентификатору.
	ErrOrderNotFound = errors.New("заказ не найден")

	// ErrUnknownOrder — нет попытки оплаты с таким gateway_order_id.
	ErrUnknownOrder = errors.New("неизвестный заказ платёжного шлюза")

	// ErrCouponNotFound — купона с таким кодом нет в хранилище.
	ErrCouponNotFound = errors.New("купон не найден")

	// ErrForbidden — заказ принадлежит другому пользователю.
	ErrForbidden = errors.New("нет доступа к заказу")
)

// Ошибки жизненного цикла заказа.
var (
	// ErrIllegalTransition — событие недопустимо в текущем статусе заказа.
	ErrIllegalTransition = errors.New("недопустимый переход состояния заказа")

	// ErrNotRetryable — заказ оплачен или выполнен, повтор оплаты невозможен.
	ErrNotRetryable = errors.New("повтор оплаты для заказа невозможен")

	// ErrPriceChanged — при повторной оплате цена заказа изменилась.
	ErrPriceChanged = errors.New("цена заказа изменилась, оформите новый заказ")

	// ErrInvalidAttempt — попытка оплаты не соответствует заказу.
	ErrInvalidAttempt = errors.New("некорректная попытка оплаты")
)

// ErrConcurrentUpdate — заказ изменён параллельно (version не совпал).
// Наружу не отдаётся: операция повторяется.
var ErrConcurrentUpdate = errors.New("заказ изменён параллельно")
