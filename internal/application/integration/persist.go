package integration

import (
	"context"

	"github.com/erp/ordersync/internal/domain/integration"
)

// persistOrders saves orders in one transaction and returns how many carried
// an identifier. Any failure rolls the whole batch back.
func persistOrders(ctx context.Context, scope TransactionScope, orders []integration.RemoteOrder) (int, error) {
	saved := 0
	err := scope.Execute(ctx, func(repos TransactionalRepositories) error {
		writer := repos.OrderWriter()
		n := 0
		for i := range orders {
			ok, err := writer.SaveOrder(ctx, &orders[i])
			if err != nil {
				return err
			}
			if ok {
				n++
			}
		}
		saved = n
		return nil
	})
	if err != nil {
		return 0, integration.WrapPersistence(err)
	}
	return saved, nil
}
