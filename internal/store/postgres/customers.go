package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/southwellmedia-dev/phoneguys-crm-sub003/internal/models"
	"github.com/southwellmedia-dev/phoneguys-crm-sub003/internal/store"
)

const customerProjection = `
	SELECT c.customer_id, c.name, c.email, c.phone, c.notes, c.created_at, c.updated_at,
		(SELECT COUNT(1) FROM customer_devices cd WHERE cd.customer_id = c.customer_id)
	FROM customers c
`

func scanCustomer(row ticketScanner) (models.Customer, error) {
	var customer models.Customer
	var emailNull, phoneNull, notesNull sql.NullString
	if err := row.Scan(&customer.CustomerID, &customer.Name, &emailNull, &phoneNull, &notesNull,
		&customer.CreatedAt, &customer.UpdatedAt, &customer.DeviceCount); err != nil {
		return models.Customer{}, err
	}
	customer.Email = nullStringVal(emailNull)
	customer.Phone = nullStringVal(phoneNull)
	customer.Notes = nullStringVal(notesNull)
	return customer, nil
}

func customerPayload(customer models.Customer) map[string]interface{} {
	return map[string]interface{}{
		"customer_id": customer.CustomerID,
		"name":        customer.Name,
		"email":       customer.Email,
		"phone":       customer.Phone,
		"notes":       customer.Notes,
		"created_at":  customer.CreatedAt,
		"updated_at":  customer.UpdatedAt,
	}
}

func customerDevicePayload(device models.CustomerDevice) map[string]interface{} {
	return map[string]interface{}{
		"customer_device_id": device.CustomerDeviceID,
		"customer_id":        device.CustomerID,
		"device_id":          device.DeviceID,
		"serial_number":      device.SerialNumber,
		"color":              device.Color,
		"storage_size":       device.StorageSize,
		"condition":          device.Condition,
		"nickname":           device.Nickname,
		"created_at":         device.CreatedAt,
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (s *Store) CreateCustomer(ctx context.Context, input store.CreateCustomerInput) (models.Customer, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Customer{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	now := time.Now().UTC()
	customer := models.Customer{
		CustomerID: uuid.NewString(),
		Name:       input.Name,
		Email:      input.Email,
		Phone:      input.Phone,
		Notes:      input.Notes,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO customers (customer_id, name, email, phone, notes, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$6)
	`, customer.CustomerID, customer.Name, nullIfEmpty(customer.Email), nullIfEmpty(customer.Phone), nullIfEmpty(customer.Notes), now)
	if err != nil {
		if isUniqueViolation(err) {
			err = store.ErrDuplicateEmail
		}
		return models.Customer{}, err
	}
	if err = insertOutboxEvent(ctx, tx, "customers", "INSERT", customerPayload(customer), nil); err != nil {
		return models.Customer{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Customer{}, err
	}
	return customer, nil
}

func (s *Store) GetCustomer(ctx context.Context, customerID string) (models.Customer, error) {
	customer, err := scanCustomer(s.pool.QueryRow(ctx, customerProjection+` WHERE c.customer_id = $1`, customerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Customer{}, store.ErrCustomerNotFound
		}
		return models.Customer{}, err
	}
	return customer, nil
}

func (s *Store) ListCustomers(ctx context.Context, search string, limit int) ([]models.Customer, error) {
	query := customerProjection + ` WHERE 1=1`
	args := []interface{}{}
	if search != "" {
		args = append(args, "%"+search+"%")
		query += fmt.Sprintf(" AND (c.name ILIKE $%d OR c.email ILIKE $%d OR c.phone ILIKE $%d)", len(args), len(args), len(args))
	}
	query += " ORDER BY c.created_at DESC"
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var customers []models.Customer
	for rows.Next() {
		customer, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		customers = append(customers, customer)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return customers, nil
}

func (s *Store) UpdateCustomer(ctx context.Context, input store.UpdateCustomerInput) (models.Customer, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Customer{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	old, err := lockCustomer(ctx, tx, input.CustomerID)
	if err != nil {
		return models.Customer{}, err
	}

	customer := old
	if input.Name != nil {
		customer.Name = *input.Name
	}
	if input.Email != nil {
		customer.Email = *input.Email
	}
	if input.Phone != nil {
		customer.Phone = *input.Phone
	}
	if input.Notes != nil {
		customer.Notes = *input.Notes
	}
	customer.UpdatedAt = time.Now().UTC()

	_, err = tx.Exec(ctx, `
		UPDATE customers
		SET name = $2, email = $3, phone = $4, notes = $5, updated_at = $6
		WHERE customer_id = $1
	`, customer.CustomerID, customer.Name, nullIfEmpty(customer.Email), nullIfEmpty(customer.Phone), nullIfEmpty(customer.Notes), customer.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			err = store.ErrDuplicateEmail
		}
		return models.Customer{}, err
	}
	if err = insertOutboxEvent(ctx, tx, "customers", "UPDATE", customerPayload(customer), customerPayload(old)); err != nil {
		return models.Customer{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Customer{}, err
	}
	customer.DeviceCount = old.DeviceCount
	return customer, nil
}

func lockCustomer(ctx context.Context, tx pgx.Tx, customerID string) (models.Customer, error) {
	var customer models.Customer
	var emailNull, phoneNull, notesNull sql.NullString
	row := tx.QueryRow(ctx, `
		SELECT customer_id, name, email, phone, notes, created_at, updated_at
		FROM customers
		WHERE customer_id = $1
		FOR UPDATE
	`, customerID)
	if err := row.Scan(&customer.CustomerID, &customer.Name, &emailNull, &phoneNull, &notesNull, &customer.CreatedAt, &customer.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Customer{}, store.ErrCustomerNotFound
		}
		return models.Customer{}, err
	}
	customer.Email = nullStringVal(emailNull)
	customer.Phone = nullStringVal(phoneNull)
	customer.Notes = nullStringVal(notesNull)
	return customer, nil
}

func (s *Store) DeleteCustomer(ctx context.Context, customerID string) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	old, err := lockCustomer(ctx, tx, customerID)
	if err != nil {
		return err
	}
	if _, err = tx.Exec(ctx, `DELETE FROM customers WHERE customer_id = $1`, customerID); err != nil {
		return err
	}
	if err = insertOutboxEvent(ctx, tx, "customers", "DELETE", nil, customerPayload(old)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

const customerDeviceProjection = `
	SELECT cd.customer_device_id, cd.customer_id, cd.device_id, cd.serial_number, cd.color,
		cd.storage_size, cd.condition, cd.nickname, cd.created_at,
		COALESCE(d.manufacturer || ' ' || d.model_name, '')
	FROM customer_devices cd
	LEFT JOIN devices d ON d.device_id = cd.device_id
`

func scanCustomerDevice(row ticketScanner) (models.CustomerDevice, error) {
	var device models.CustomerDevice
	var serialNull, colorNull, storageNull, conditionNull, nicknameNull sql.NullString
	if err := row.Scan(&device.CustomerDeviceID, &device.CustomerID, &device.DeviceID, &serialNull, &colorNull,
		&storageNull, &conditionNull, &nicknameNull, &device.CreatedAt, &device.DeviceName); err != nil {
		return models.CustomerDevice{}, err
	}
	device.SerialNumber = nullStringVal(serialNull)
	device.Color = nullStringVal(colorNull)
	device.StorageSize = nullStringVal(storageNull)
	device.Condition = nullStringVal(conditionNull)
	device.Nickname = nullStringVal(nicknameNull)
	return device, nil
}

func (s *Store) CreateCustomerDevice(ctx context.Context, input store.CreateCustomerDeviceInput) (models.CustomerDevice, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.CustomerDevice{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err = lockCustomer(ctx, tx, input.CustomerID); err != nil {
		return models.CustomerDevice{}, err
	}
	if err = ensureDeviceExists(ctx, tx, input.DeviceID); err != nil {
		return models.CustomerDevice{}, err
	}

	device := models.CustomerDevice{
		CustomerDeviceID: uuid.NewString(),
		CustomerID:       input.CustomerID,
		DeviceID:         input.DeviceID,
		SerialNumber:     input.SerialNumber,
		Color:            input.Color,
		StorageSize:      input.StorageSize,
		Condition:        input.Condition,
		Nickname:         input.Nickname,
		CreatedAt:        time.Now().UTC(),
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO customer_devices (customer_device_id, customer_id, device_id, serial_number, color, storage_size, condition, nickname, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, device.CustomerDeviceID, device.CustomerID, device.DeviceID, nullIfEmpty(device.SerialNumber), nullIfEmpty(device.Color),
		nullIfEmpty(device.StorageSize), nullIfEmpty(device.Condition), nullIfEmpty(device.Nickname), device.CreatedAt)
	if err != nil {
		return models.CustomerDevice{}, err
	}
	if err = insertOutboxEvent(ctx, tx, "customer_devices", "INSERT", customerDevicePayload(device), nil); err != nil {
		return models.CustomerDevice{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.CustomerDevice{}, err
	}
	device.DeviceName, _ = s.deviceDisplayName(ctx, device.DeviceID)
	return device, nil
}

func (s *Store) deviceDisplayName(ctx context.Context, deviceID string) (string, error) {
	var name string
	err := s.pool.QueryRow(ctx, `
		SELECT manufacturer || ' ' || model_name FROM devices WHERE device_id = $1
	`, deviceID).Scan(&name)
	return name, err
}

func (s *Store) GetCustomerDevice(ctx context.Context, customerDeviceID string) (models.CustomerDevice, error) {
	device, err := scanCustomerDevice(s.pool.QueryRow(ctx, customerDeviceProjection+` WHERE cd.customer_device_id = $1`, customerDeviceID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.CustomerDevice{}, store.ErrDeviceNotFound
		}
		return models.CustomerDevice{}, err
	}
	return device, nil
}

func (s *Store) ListCustomerDevices(ctx context.Context, customerID string) ([]models.CustomerDevice, error) {
	rows, err := s.pool.Query(ctx, customerDeviceProjection+` WHERE cd.customer_id = $1 ORDER BY cd.created_at ASC`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var devices []models.CustomerDevice
	for rows.Next() {
		device, err := scanCustomerDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, device)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return devices, nil
}

func (s *Store) DeleteCustomerDevice(ctx context.Context, customerDeviceID string) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var old models.CustomerDevice
	old, err = scanCustomerDevice(tx.QueryRow(ctx, customerDeviceProjection+` WHERE cd.customer_device_id = $1 FOR UPDATE OF cd`, customerDeviceID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrDeviceNotFound
		}
		return err
	}
	if _, err = tx.Exec(ctx, `DELETE FROM customer_devices WHERE customer_device_id = $1`, customerDeviceID); err != nil {
		return err
	}
	if err = insertOutboxEvent(ctx, tx, "customer_devices", "DELETE", nil, customerDevicePayload(old)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
