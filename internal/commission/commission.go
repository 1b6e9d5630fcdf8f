// Package commission считает комиссию платформы при фондировании эскроу.
package commission

import "math"

// Rate — фиксированная ставка комиссии платформы.
const Rate = 0.10

// Split описывает разбиение валовой суммы на комиссию и чистую выплату.
type Split struct {
	Gross      float64 `json:"gross"`
	Rate       float64 `json:"rate"`
	Commission float64 `json:"commission"`
	NetAmount  float64 `json:"net_amount"`
}

// Calculate возвращает разбиение валовой суммы по фиксированной ставке.
// Комиссия округляется до копеек, чистая сумма — остаток от валовой.
// Нулевая сумма допустима и даёт полностью нулевое разбиение, включая ставку.
func Calculate(gross float64) Split {
	if gross == 0 {
		return Split{}
	}

	fee := math.Round(gross*Rate*100) / 100

	return Split{
		Gross:      gross,
		Rate:       Rate,
		Commission: fee,
		NetAmount:  gross - fee,
	}
}
