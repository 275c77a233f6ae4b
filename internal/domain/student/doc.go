// Package student содержит справочник студентов.
//
// Студент идентифицируется внешним номером (StudentNo), который выдаёт
// университет. Справочник используется леджером оплаты обучения:
//
//   - при одиночном добавлении начисления неизвестный студент может быть
//     создан автоматически с именем-заглушкой (см. NewPlaceholder);
//   - при пакетном импорте студент по умолчанию должен уже существовать.
//
// Пакет не зависит от инфраструктуры. Реализации Repository находятся
// в infrastructure/persistence (postgres, sqlite, memory).
package student
