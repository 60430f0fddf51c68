package service

import "errors"

// Таксономия ошибок бизнес-логики для обработки в handlers
// Каждая структурная операция возвращает конкретный, различимый вид ошибки:
// вызывающий должен отличать "некорректное имя" от "цикл в дереве"
// и от "нельзя удалить, есть дети"
var (
	// ErrValidation - некорректное имя/slug, превышение глубины, циклическое перемещение
	ErrValidation = errors.New("validation error")

	// ErrConflict - дубликат slug
	ErrConflict = errors.New("conflict")

	// ErrNotFound - категория не найдена
	ErrNotFound = errors.New("category not found")

	// ErrIntegrity - удаление заблокировано детьми или товарами
	ErrIntegrity = errors.New("integrity violation")

	// ErrAggregation - сбой запроса к каталогу товаров при пересчете метрик
	// Не фатальна: пересчет узла прерывается, метрики остаются устаревшими
	ErrAggregation = errors.New("aggregation failed")
)
