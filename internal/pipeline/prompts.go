package pipeline

import (
	"fmt"
	"strings"
)

const analysisSystemPrompt = `Ты — скрипт-помощник для первичной обработки найденного текста о крипте.
Верни JSON с полями: summary_2 (резюме в 2 предложения), key_points (3 пункта),
risk_tags (массив из словаря: rumor, hack, regulation, scam, exploit),
priority (low/medium/high), language (ISO-код определённого языка).
Причины приоритета — 1 предложение. Отвечай только валидным JSON.`

const enhanceSystemPromptTpl = `Ты — эксперт по криптовалютам и переводчик. Твоя задача: на основе исходного текста на %s подготовить:
1) качественный перевод на русский (без кальки с оригинала, естественная русская речь),
2) краткий пересказ в 3-5 предложениях, понятный неспециалисту,
3) глоссарий из 3-5 терминов с короткими пояснениями.
Соблюдай тон: нейтрально-аналитический. Если статья содержит непроверяемые слухи — пометь как "неподтверждённо".
Верни JSON с полями: human_translation, summary, glossary (массив строк).`

const rewriteSystemPromptTpl = `Ты — редактор телеграм-канала с человечным, но аналитическим тоном. На входе — исходный текст (перевод) и краткий пересказ.
Требуется сгенерировать уникальную статью длиной 200-450 слов, которая:
- полностью перефразирует исходник (никаких длинных фрагментов копипаста),
- включает 1-2 личные ремарки от автора,
- если есть пересечения с прошлой публикацией, кратко свяжи события,
- предложи 2 варианта заголовка (короткий и расширенный) и 2-3 тега.
Если материал выглядит как слух, пометь это в тексте. Порог схожести с архивом: %.2f.
Верни JSON с полями: headline_short, headline_long, body, author_note, tags (массив строк).`

func enhanceSystemPrompt(sourceLang string) string {
	return fmt.Sprintf(enhanceSystemPromptTpl, sourceLang)
}

func rewriteSystemPrompt(similarityThreshold float32) string {
	return fmt.Sprintf(rewriteSystemPromptTpl, similarityThreshold)
}

func analysisUserPrompt(source, languageHint, text string) string {
	var b strings.Builder
	b.WriteString("Источник: ")
	b.WriteString(source)
	if languageHint != "" {
		b.WriteString("\nЯзык (подсказка): ")
		b.WriteString(languageHint)
	}
	b.WriteString("\n\nТекст:\n")
	b.WriteString(text)

	return b.String()
}

func enhanceUserPrompt(sourceLang, original, machine string) string {
	return fmt.Sprintf(
		"Оригинальный текст (%s): %s\n\nМашинный перевод: %s\n\nПожалуйста, улучши перевод согласно инструкциям.",
		sourceLang, original, machine,
	)
}

func rewriteUserPrompt(translated, summary string, similarity float32) string {
	return fmt.Sprintf(
		"Исходный текст (перевод): %s\n\nКраткий пересказ: %s\n\nСхожесть с архивом: %.2f\n\nСоздай уникальную статью согласно инструкциям.",
		translated, summary, similarity,
	)
}
