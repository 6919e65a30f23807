package security

import (
	"fmt"
	"regexp"
	"strings"
)

// forbiddenKeywords - операции, запрещенные в safe mode
var forbiddenKeywords = []string{
	// DML
	"INSERT", "UPDATE", "DELETE", "TRUNCATE", "MERGE", "UPSERT",

	// DDL
	"DROP", "CREATE", "ALTER", "RENAME",

	// DCL
	"GRANT", "REVOKE",

	// Опасные функции и операции
	"EXECUTE", "EXEC", "CALL", "COPY", "INTO",

	// SQLite специфичные команды
	"PRAGMA", "ATTACH", "DETACH", "VACUUM",

	// Транзакции
	"BEGIN", "COMMIT", "ROLLBACK", "SAVEPOINT",
}

// forbiddenRe matches any forbidden keyword as a whole word.
// SELECT ... INTO is also a write, so INTO is on the list.
var forbiddenRe = regexp.MustCompile(`\b(` + strings.Join(forbiddenKeywords, "|") + `)\b`)

// SQLValidator проверяет SQL запросы на соответствие политикам безопасности.
//
// В safe mode разрешены только SELECT и WITH запросы,
// блокируются все изменяющие операции (INSERT, UPDATE, DELETE, DROP, etc).
//
// В unsafe mode все запросы разрешены.
type SQLValidator struct {
	safeMode bool
}

// NewSQLValidator создает новый SQL валидатор.
func NewSQLValidator(safeMode bool) *SQLValidator {
	return &SQLValidator{
		safeMode: safeMode,
	}
}

// Validate проверяет SQL запрос.
//
// В safe mode проверяет:
//   - Запрос начинается с SELECT или WITH
//   - Отсутствуют запрещенные ключевые слова
//   - Нет множественных команд (через ;)
//   - Нет SQL комментариев
func (v *SQLValidator) Validate(sql string) error {
	if v == nil || !v.safeMode {
		return nil
	}

	normalized := strings.ToUpper(strings.TrimSpace(sql))
	if normalized == "" {
		return fmt.Errorf("empty query")
	}

	// 1. Разрешены только SELECT и WITH (CTE)
	if !strings.HasPrefix(normalized, "SELECT") && !strings.HasPrefix(normalized, "WITH") {
		return fmt.Errorf("only SELECT and WITH queries allowed in safe mode, got: %s",
			getQueryType(normalized))
	}

	// 2. Комментарии проверяем до ключевых слов: они могут прятать что угодно
	if err := checkComments(sql); err != nil {
		return err
	}

	// 3. Запрет множественных команд
	if err := checkMultipleStatements(sql); err != nil {
		return err
	}

	// 4. Запрещенные ключевые слова
	if m := forbiddenRe.FindString(normalized); m != "" {
		return fmt.Errorf("forbidden keyword '%s' found in safe mode", m)
	}

	return nil
}

// checkMultipleStatements - максимум одна точка с запятой, и только в конце
func checkMultipleStatements(sql string) error {
	semicolonCount := strings.Count(sql, ";")

	if semicolonCount > 1 {
		return fmt.Errorf("multiple statements not allowed in safe mode")
	}

	if semicolonCount == 1 {
		trimmed := strings.TrimSpace(sql)
		if !strings.HasSuffix(trimmed, ";") {
			return fmt.Errorf("semicolon allowed only at the end of query")
		}
	}

	return nil
}

// checkComments проверяет наличие SQL комментариев (-- и /* */)
func checkComments(sql string) error {
	if strings.Contains(sql, "--") {
		return fmt.Errorf("SQL comments (--) not allowed in safe mode")
	}

	if strings.Contains(sql, "/*") || strings.Contains(sql, "*/") {
		return fmt.Errorf("SQL comments (/* */) not allowed in safe mode")
	}

	return nil
}

// getQueryType определяет тип SQL запроса для сообщения об ошибке
func getQueryType(sql string) string {
	parts := strings.Fields(sql)
	if len(parts) > 0 {
		return parts[0]
	}
	return "UNKNOWN"
}

// IsSafeMode возвращает текущий режим валидатора
func (v *SQLValidator) IsSafeMode() bool {
	return v != nil && v.safeMode
}
