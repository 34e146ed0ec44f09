// internal/service/checkout/infrastructure/gorm_repository.go
package infrastructure

import (
	"context"
	"time"

	gomysql "github.com/go-sql-driver/mysql"
	pkgerrors "github.com/pkg/errors"
	"gorm.io/gorm"

	"bazaar/internal/service/checkout/domain"
)

const mysqlDuplicateEntry = 1062

// GormOrderRepository 是 domain.OrderRepository 的 GORM 实现。
type GormOrderRepository struct {
	db *gorm.DB
}

func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

// Create 插入订单及其行项。reference 唯一索引冲突映射为 ErrConflict。
func (r *GormOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	model := fromDomainOrder(order)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		var mysqlErr *gomysql.MySQLError
		if pkgerrors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry {
			return pkgerrors.Wrapf(domain.ErrConflict, "duplicate reference %s", order.Reference)
		}
		return pkgerrors.Wrap(err, "failed to create order")
	}
	order.ID = model.ID
	for i := range model.Items {
		order.Items[i].ID = model.Items[i].ID
	}
	return nil
}

func (r *GormOrderRepository) FindByID(ctx context.Context, id uint) (*domain.Order, error) {
	var model OrderModel
	err := r.db.WithContext(ctx).Preload("Items").First(&model, id).Error
	if err != nil {
		if pkgerrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrapf(domain.ErrNotFound, "order %d", id)
		}
		return nil, pkgerrors.Wrap(err, "failed to find order")
	}
	return toDomainOrder(&model), nil
}

// FindByReference 按 reference 或 paymentReference 查找。
func (r *GormOrderRepository) FindByReference(ctx context.Context, reference string) (*domain.Order, error) {
	var model OrderModel
	err := r.db.WithContext(ctx).Preload("Items").
		Where("reference = ? OR payment_reference = ?", reference, reference).
		First(&model).Error
	if err != nil {
		if pkgerrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrapf(domain.ErrNotFound, "order with reference %s", reference)
		}
		return nil, pkgerrors.Wrap(err, "failed to find order by reference")
	}
	return toDomainOrder(&model), nil
}

func (r *GormOrderRepository) FindByBuyer(ctx context.Context, buyerID string, page, limit int) ([]domain.Order, int64, error) {
	return r.list(ctx, r.db.WithContext(ctx).Where("buyer_id = ?", buyerID), page, limit)
}

func (r *GormOrderRepository) FindAll(ctx context.Context, page, limit int) ([]domain.Order, int64, error) {
	return r.list(ctx, r.db.WithContext(ctx), page, limit)
}

func (r *GormOrderRepository) list(ctx context.Context, query *gorm.DB, page, limit int) ([]domain.Order, int64, error) {
	var total int64
	if err := query.Model(&OrderModel{}).Count(&total).Error; err != nil {
		return nil, 0, pkgerrors.Wrap(err, "failed to count orders")
	}

	var models []OrderModel
	err := query.Preload("Items").
		Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, 0, pkgerrors.Wrap(err, "failed to list orders")
	}

	orders := make([]domain.Order, 0, len(models))
	for i := range models {
		orders = append(orders, *toDomainOrder(&models[i]))
	}
	return orders, total, nil
}

// TransitionStatus 用一条条件 UPDATE 实现状态 CAS：
// 仅当当前状态是目标状态的合法前驱时才生效，并发转移最多一个成功。
func (r *GormOrderRepository) TransitionStatus(ctx context.Context, orderID uint, to domain.Status, paid *domain.PaidMark) (bool, error) {
	predecessors := domain.ValidPredecessors(to)
	if len(predecessors) == 0 {
		return false, pkgerrors.Wrapf(domain.ErrConflict, "status %s is not a transition target", to)
	}

	updates := map[string]interface{}{
		"status":     string(to),
		"updated_at": time.Now(),
	}
	if paid != nil {
		updates["is_paid"] = true
		updates["paid_at"] = time.Unix(paid.PaidAt, 0)
		if paid.PaymentReference != "" {
			updates["payment_reference"] = paid.PaymentReference
		}
	}

	result := r.db.WithContext(ctx).Model(&OrderModel{}).
		Where("id = ? AND status IN ?", orderID, statusStrings(predecessors)).
		Updates(updates)
	if result.Error != nil {
		return false, pkgerrors.Wrap(result.Error, "failed to transition order status")
	}
	return result.RowsAffected == 1, nil
}

func statusStrings(statuses []domain.Status) []string {
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, string(s))
	}
	return out
}

func (r *GormOrderRepository) AssignPaymentReference(ctx context.Context, orderID uint, paymentReference string) error {
	err := r.db.WithContext(ctx).Model(&OrderModel{}).
		Where("id = ?", orderID).
		Update("payment_reference", paymentReference).Error
	return pkgerrors.Wrap(err, "failed to assign payment reference")
}

func (r *GormOrderRepository) AppendLog(ctx context.Context, log *domain.OrderLog) error {
	model := &OrderLogModel{
		OrderID:     log.OrderID,
		Action:      string(log.Action),
		PerformedBy: log.PerformedBy,
		ActorType:   log.ActorType,
		Metadata:    log.Metadata,
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return pkgerrors.Wrap(err, "failed to append order log")
	}
	log.ID = model.ID
	log.CreatedAt = model.CreatedAt
	return nil
}

func (r *GormOrderRepository) CountLogs(ctx context.Context, orderID uint, action domain.LogAction) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&OrderLogModel{}).
		Where("order_id = ? AND action = ?", orderID, string(action)).
		Count(&count).Error
	return count, pkgerrors.Wrap(err, "failed to count order logs")
}

// Stats 聚合各状态订单数与已支付订单的总收入。
func (r *GormOrderRepository) Stats(ctx context.Context) (*domain.OrderStats, error) {
	stats := &domain.OrderStats{CountsByStatus: map[domain.Status]int64{}}

	var rows []struct {
		Status string
		Count  int64
	}
	err := r.db.WithContext(ctx).Model(&OrderModel{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to aggregate order counts")
	}
	for _, row := range rows {
		stats.CountsByStatus[domain.Status(row.Status)] = row.Count
	}

	err = r.db.WithContext(ctx).Model(&OrderModel{}).
		Where("is_paid = ?", true).
		Select("COALESCE(SUM(total_price), 0)").
		Scan(&stats.TotalRevenue).Error
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to aggregate revenue")
	}
	return stats, nil
}
