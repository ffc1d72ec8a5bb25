package services

import (
	"context"
	"fmt"
)

// DefaultKnowledge is loaded into an empty index on first start.
var DefaultKnowledge = []struct {
	Content  string
	Metadata map[string]interface{}
}{
	{"AQUADOKS: щелочная питьевая вода для здоровья и энергии.", map[string]interface{}{"topic": "brand"}},
	{"Ассортимент: 0.5 л (12 шт в упаковке): 1 000 ₽, 1 л (9 шт): 1 250 ₽, 5 л (2 шт): 800 ₽, 19 л (1 шт): 1 000 ₽.", map[string]interface{}{"topic": "products"}},
	{"Скидка 10% при заказе от 5 000 ₽. Скидка считается от суммы заказа и округляется до рубля.", map[string]interface{}{"topic": "discount"}},
	{"Доставка по Санкт-Петербургу курьером. Стоимость зависит от количества упаковок и суммы заказа.", map[string]interface{}{"topic": "delivery"}},
	{"В другие города вода доступна через маркетплейсы: Ozon, Wildberries, Яндекс.Маркет.", map[string]interface{}{"topic": "delivery"}},
	{"Оплата заказа по ссылке на оплату. Заказ собирается после подтверждения оплаты.", map[string]interface{}{"topic": "payment"}},
	{"Статус заказа можно узнать по номеру заказа или номеру телефона.", map[string]interface{}{"topic": "orders"}},
}

// SeedKnowledge embeds DefaultKnowledge when the index holds no chunks.
func SeedKnowledge(ctx context.Context, k *KnowledgeService) (int, error) {
	count, err := k.Count(ctx)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		return 0, nil
	}
	for i, chunk := range DefaultKnowledge {
		if _, err := k.UpsertText(ctx, chunk.Content, chunk.Metadata); err != nil {
			return i, fmt.Errorf("failed to seed knowledge chunk %d: %w", i, err)
		}
	}
	return len(DefaultKnowledge), nil
}
