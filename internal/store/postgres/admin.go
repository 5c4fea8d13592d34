package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/southwellmedia-dev/phoneguys-crm-sub003/internal/models"
	"github.com/southwellmedia-dev/phoneguys-crm-sub003/internal/store"
)

func userPayload(user models.User) map[string]interface{} {
	return map[string]interface{}{
		"user_id":    user.UserID,
		"email":      user.Email,
		"name":       user.Name,
		"role":       user.Role,
		"active":     user.Active,
		"created_at": user.CreatedAt,
	}
}

func devicePayload(device models.Device) map[string]interface{} {
	return map[string]interface{}{
		"device_id":    device.DeviceID,
		"manufacturer": device.Manufacturer,
		"model_name":   device.ModelName,
		"model_number": device.ModelNumber,
		"device_type":  device.DeviceType,
		"release_year": device.ReleaseYear,
		"image_url":    device.ImageURL,
		"active":       device.Active,
	}
}

func servicePayload(service models.Service) map[string]interface{} {
	return map[string]interface{}{
		"service_id":        service.ServiceID,
		"name":              service.Name,
		"category":          service.Category,
		"base_price":        service.BasePrice,
		"estimated_minutes": service.EstimatedMinutes,
		"active":            service.Active,
	}
}

func mediaPayload(asset models.MediaAsset) map[string]interface{} {
	return map[string]interface{}{
		"asset_id":   asset.AssetID,
		"file_name":  asset.FileName,
		"url":        asset.URL,
		"mime_type":  asset.MimeType,
		"size_bytes": asset.SizeBytes,
		"created_at": asset.CreatedAt,
	}
}

func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_id, email, name, role, active, created_at
		FROM users
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var user models.User
		if err := rows.Scan(&user.UserID, &user.Email, &user.Name, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) CreateUser(ctx context.Context, email, name, role, password string) (models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.User{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	user := models.User{
		UserID:    uuid.NewString(),
		Email:     email,
		Name:      name,
		Role:      role,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO users (user_id, email, name, role, active, password_hash, created_at)
		VALUES ($1,$2,$3,$4,TRUE,$5,$6)
	`, user.UserID, user.Email, user.Name, user.Role, string(hash), user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			err = store.ErrDuplicateEmail
		}
		return models.User{}, err
	}
	if err = insertOutboxEvent(ctx, tx, "users", "INSERT", userPayload(user), nil); err != nil {
		return models.User{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.User{}, err
	}
	return user, nil
}

func (s *Store) UpdateUser(ctx context.Context, userID string, name, role *string, active *bool) (models.User, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.User{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	old, err := lockUser(ctx, tx, userID)
	if err != nil {
		return models.User{}, err
	}

	user := old
	if name != nil {
		user.Name = *name
	}
	if role != nil {
		user.Role = *role
	}
	if active != nil {
		user.Active = *active
	}
	_, err = tx.Exec(ctx, `
		UPDATE users SET name = $2, role = $3, active = $4 WHERE user_id = $1
	`, userID, user.Name, user.Role, user.Active)
	if err != nil {
		return models.User{}, err
	}
	if err = insertOutboxEvent(ctx, tx, "users", "UPDATE", userPayload(user), userPayload(old)); err != nil {
		return models.User{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.User{}, err
	}
	return user, nil
}

func lockUser(ctx context.Context, tx pgx.Tx, userID string) (models.User, error) {
	var user models.User
	row := tx.QueryRow(ctx, `
		SELECT user_id, email, name, role, active, created_at
		FROM users
		WHERE user_id = $1
		FOR UPDATE
	`, userID)
	if err := row.Scan(&user.UserID, &user.Email, &user.Name, &user.Role, &user.Active, &user.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, store.ErrUserNotFound
		}
		return models.User{}, err
	}
	return user, nil
}

func (s *Store) DeleteUser(ctx context.Context, userID string) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	old, err := lockUser(ctx, tx, userID)
	if err != nil {
		return err
	}
	if _, err = tx.Exec(ctx, `DELETE FROM users WHERE user_id = $1`, userID); err != nil {
		return err
	}
	if err = insertOutboxEvent(ctx, tx, "users", "DELETE", nil, userPayload(old)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) ListDevices(ctx context.Context, activeOnly bool) ([]models.Device, error) {
	query := `
		SELECT device_id, manufacturer, model_name, model_number, device_type, release_year, image_url, active
		FROM devices
	`
	if activeOnly {
		query += " WHERE active = TRUE"
	}
	query += " ORDER BY manufacturer ASC, model_name ASC"

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var devices []models.Device
	for rows.Next() {
		device, err := scanDevice(rows)
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

func scanDevice(row ticketScanner) (models.Device, error) {
	var device models.Device
	var modelNumberNull, deviceTypeNull, imageURLNull sql.NullString
	var releaseYearNull sql.NullInt32
	if err := row.Scan(&device.DeviceID, &device.Manufacturer, &device.ModelName, &modelNumberNull,
		&deviceTypeNull, &releaseYearNull, &imageURLNull, &device.Active); err != nil {
		return models.Device{}, err
	}
	device.ModelNumber = nullStringVal(modelNumberNull)
	device.DeviceType = nullStringVal(deviceTypeNull)
	device.ImageURL = nullStringVal(imageURLNull)
	if releaseYearNull.Valid {
		device.ReleaseYear = int(releaseYearNull.Int32)
	}
	return device, nil
}

func (s *Store) GetDevice(ctx context.Context, deviceID string) (models.Device, error) {
	device, err := scanDevice(s.pool.QueryRow(ctx, `
		SELECT device_id, manufacturer, model_name, model_number, device_type, release_year, image_url, active
		FROM devices
		WHERE device_id = $1
	`, deviceID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Device{}, store.ErrDeviceNotFound
		}
		return models.Device{}, err
	}
	return device, nil
}

func (s *Store) CreateDevice(ctx context.Context, input store.SyncDeviceInput) (models.Device, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Device{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	device := models.Device{
		DeviceID:     uuid.NewString(),
		Manufacturer: input.Manufacturer,
		ModelName:    input.ModelName,
		ModelNumber:  input.ModelNumber,
		DeviceType:   input.DeviceType,
		ReleaseYear:  input.ReleaseYear,
		ImageURL:     input.ImageURL,
		Active:       true,
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO devices (device_id, manufacturer, model_name, model_number, device_type, release_year, image_url, active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,TRUE)
	`, device.DeviceID, device.Manufacturer, device.ModelName, nullIfEmpty(device.ModelNumber),
		nullIfEmpty(device.DeviceType), device.ReleaseYear, nullIfEmpty(device.ImageURL))
	if err != nil {
		return models.Device{}, err
	}
	if err = insertOutboxEvent(ctx, tx, "devices", "INSERT", devicePayload(device), nil); err != nil {
		return models.Device{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Device{}, err
	}
	return device, nil
}

func (s *Store) UpdateDevice(ctx context.Context, deviceID string, input store.SyncDeviceInput, active *bool) (models.Device, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Device{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	old, err := lockDevice(ctx, tx, deviceID)
	if err != nil {
		return models.Device{}, err
	}

	device := old
	device.Manufacturer = input.Manufacturer
	device.ModelName = input.ModelName
	device.ModelNumber = input.ModelNumber
	device.DeviceType = input.DeviceType
	device.ReleaseYear = input.ReleaseYear
	device.ImageURL = input.ImageURL
	if active != nil {
		device.Active = *active
	}
	_, err = tx.Exec(ctx, `
		UPDATE devices
		SET manufacturer = $2, model_name = $3, model_number = $4, device_type = $5, release_year = $6, image_url = $7, active = $8
		WHERE device_id = $1
	`, deviceID, device.Manufacturer, device.ModelName, nullIfEmpty(device.ModelNumber),
		nullIfEmpty(device.DeviceType), device.ReleaseYear, nullIfEmpty(device.ImageURL), device.Active)
	if err != nil {
		return models.Device{}, err
	}
	if err = insertOutboxEvent(ctx, tx, "devices", "UPDATE", devicePayload(device), devicePayload(old)); err != nil {
		return models.Device{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Device{}, err
	}
	return device, nil
}

func lockDevice(ctx context.Context, tx pgx.Tx, deviceID string) (models.Device, error) {
	var device models.Device
	var modelNumberNull, deviceTypeNull, imageURLNull sql.NullString
	var releaseYearNull sql.NullInt32
	row := tx.QueryRow(ctx, `
		SELECT device_id, manufacturer, model_name, model_number, device_type, release_year, image_url, active
		FROM devices
		WHERE device_id = $1
		FOR UPDATE
	`, deviceID)
	if err := row.Scan(&device.DeviceID, &device.Manufacturer, &device.ModelName, &modelNumberNull,
		&deviceTypeNull, &releaseYearNull, &imageURLNull, &device.Active); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Device{}, store.ErrDeviceNotFound
		}
		return models.Device{}, err
	}
	device.ModelNumber = nullStringVal(modelNumberNull)
	device.DeviceType = nullStringVal(deviceTypeNull)
	device.ImageURL = nullStringVal(imageURLNull)
	if releaseYearNull.Valid {
		device.ReleaseYear = int(releaseYearNull.Int32)
	}
	return device, nil
}

func (s *Store) DeleteDevice(ctx context.Context, deviceID string) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	old, err := lockDevice(ctx, tx, deviceID)
	if err != nil {
		return err
	}
	if _, err = tx.Exec(ctx, `DELETE FROM devices WHERE device_id = $1`, deviceID); err != nil {
		return err
	}
	if err = insertOutboxEvent(ctx, tx, "devices", "DELETE", nil, devicePayload(old)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// SyncDevices upserts catalog rows keyed by manufacturer+model_number in a
// single transaction, emitting one outbox event per row touched.
func (s *Store) SyncDevices(ctx context.Context, inputs []store.SyncDeviceInput) (store.SyncDevicesResult, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return store.SyncDevicesResult{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var result store.SyncDevicesResult
	for _, input := range inputs {
		var device models.Device
		var inserted bool
		row := tx.QueryRow(ctx, `
			INSERT INTO devices (device_id, manufacturer, model_name, model_number, device_type, release_year, image_url, active)
			VALUES ($1,$2,$3,$4,$5,$6,$7,TRUE)
			ON CONFLICT (manufacturer, model_number)
			DO UPDATE SET model_name = EXCLUDED.model_name,
				device_type = EXCLUDED.device_type,
				release_year = EXCLUDED.release_year,
				image_url = EXCLUDED.image_url
			RETURNING device_id, (xmax = 0)
		`, uuid.NewString(), input.Manufacturer, input.ModelName, nullIfEmpty(input.ModelNumber),
			nullIfEmpty(input.DeviceType), input.ReleaseYear, nullIfEmpty(input.ImageURL))
		if err = row.Scan(&device.DeviceID, &inserted); err != nil {
			return store.SyncDevicesResult{}, err
		}

		device.Manufacturer = input.Manufacturer
		device.ModelName = input.ModelName
		device.ModelNumber = input.ModelNumber
		device.DeviceType = input.DeviceType
		device.ReleaseYear = input.ReleaseYear
		device.ImageURL = input.ImageURL
		device.Active = true

		eventType := "UPDATE"
		if inserted {
			eventType = "INSERT"
			result.Created++
		} else {
			result.Updated++
		}
		if err = insertOutboxEvent(ctx, tx, "devices", eventType, devicePayload(device), nil); err != nil {
			return store.SyncDevicesResult{}, err
		}
	}
	if err = tx.Commit(ctx); err != nil {
		return store.SyncDevicesResult{}, err
	}
	return result, nil
}

func (s *Store) ListServices(ctx context.Context) ([]models.Service, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT service_id, name, category, base_price, estimated_minutes, active
		FROM services
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var services []models.Service
	for rows.Next() {
		var service models.Service
		var categoryNull sql.NullString
		if err := rows.Scan(&service.ServiceID, &service.Name, &categoryNull, &service.BasePrice, &service.EstimatedMinutes, &service.Active); err != nil {
			return nil, err
		}
		service.Category = nullStringVal(categoryNull)
		services = append(services, service)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return services, nil
}

func (s *Store) CreateService(ctx context.Context, name, category string, basePrice float64, estimatedMinutes int) (models.Service, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Service{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	service := models.Service{
		ServiceID:        uuid.NewString(),
		Name:             name,
		Category:         category,
		BasePrice:        basePrice,
		EstimatedMinutes: estimatedMinutes,
		Active:           true,
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO services (service_id, name, category, base_price, estimated_minutes, active)
		VALUES ($1,$2,$3,$4,$5,TRUE)
	`, service.ServiceID, service.Name, nullIfEmpty(service.Category), service.BasePrice, service.EstimatedMinutes)
	if err != nil {
		return models.Service{}, err
	}
	if err = insertOutboxEvent(ctx, tx, "services", "INSERT", servicePayload(service), nil); err != nil {
		return models.Service{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Service{}, err
	}
	return service, nil
}

func (s *Store) UpdateService(ctx context.Context, serviceID string, name, category *string, basePrice *float64, estimatedMinutes *int, active *bool) (models.Service, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Service{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var old models.Service
	var categoryNull sql.NullString
	row := tx.QueryRow(ctx, `
		SELECT service_id, name, category, base_price, estimated_minutes, active
		FROM services
		WHERE service_id = $1
		FOR UPDATE
	`, serviceID)
	if err = row.Scan(&old.ServiceID, &old.Name, &categoryNull, &old.BasePrice, &old.EstimatedMinutes, &old.Active); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrServiceNotFound
		}
		return models.Service{}, err
	}
	old.Category = nullStringVal(categoryNull)

	service := old
	if name != nil {
		service.Name = *name
	}
	if category != nil {
		service.Category = *category
	}
	if basePrice != nil {
		service.BasePrice = *basePrice
	}
	if estimatedMinutes != nil {
		service.EstimatedMinutes = *estimatedMinutes
	}
	if active != nil {
		service.Active = *active
	}
	_, err = tx.Exec(ctx, `
		UPDATE services
		SET name = $2, category = $3, base_price = $4, estimated_minutes = $5, active = $6
		WHERE service_id = $1
	`, serviceID, service.Name, nullIfEmpty(service.Category), service.BasePrice, service.EstimatedMinutes, service.Active)
	if err != nil {
		return models.Service{}, err
	}
	if err = insertOutboxEvent(ctx, tx, "services", "UPDATE", servicePayload(service), servicePayload(old)); err != nil {
		return models.Service{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Service{}, err
	}
	return service, nil
}

func (s *Store) DeleteService(ctx context.Context, serviceID string) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var old models.Service
	var categoryNull sql.NullString
	row := tx.QueryRow(ctx, `
		SELECT service_id, name, category, base_price, estimated_minutes, active
		FROM services
		WHERE service_id = $1
		FOR UPDATE
	`, serviceID)
	if err = row.Scan(&old.ServiceID, &old.Name, &categoryNull, &old.BasePrice, &old.EstimatedMinutes, &old.Active); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrServiceNotFound
		}
		return err
	}
	old.Category = nullStringVal(categoryNull)

	if _, err = tx.Exec(ctx, `DELETE FROM services WHERE service_id = $1`, serviceID); err != nil {
		return err
	}
	if err = insertOutboxEvent(ctx, tx, "services", "DELETE", nil, servicePayload(old)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) ListMedia(ctx context.Context, limit int) ([]models.MediaAsset, error) {
	query := `
		SELECT asset_id, file_name, url, mime_type, size_bytes, created_at
		FROM media_library
		ORDER BY created_at DESC
	`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assets []models.MediaAsset
	for rows.Next() {
		var asset models.MediaAsset
		var mimeNull sql.NullString
		if err := rows.Scan(&asset.AssetID, &asset.FileName, &asset.URL, &mimeNull, &asset.SizeBytes, &asset.CreatedAt); err != nil {
			return nil, err
		}
		asset.MimeType = nullStringVal(mimeNull)
		assets = append(assets, asset)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return assets, nil
}

func (s *Store) CreateMedia(ctx context.Context, fileName, url, mimeType string, sizeBytes int64) (models.MediaAsset, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.MediaAsset{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	asset := models.MediaAsset{
		AssetID:   uuid.NewString(),
		FileName:  fileName,
		URL:       url,
		MimeType:  mimeType,
		SizeBytes: sizeBytes,
		CreatedAt: time.Now().UTC(),
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO media_library (asset_id, file_name, url, mime_type, size_bytes, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, asset.AssetID, asset.FileName, asset.URL, nullIfEmpty(asset.MimeType), asset.SizeBytes, asset.CreatedAt)
	if err != nil {
		return models.MediaAsset{}, err
	}
	if err = insertOutboxEvent(ctx, tx, "media_library", "INSERT", mediaPayload(asset), nil); err != nil {
		return models.MediaAsset{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.MediaAsset{}, err
	}
	return asset, nil
}

func (s *Store) DeleteMedia(ctx context.Context, assetID string) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var old models.MediaAsset
	var mimeNull sql.NullString
	row := tx.QueryRow(ctx, `
		SELECT asset_id, file_name, url, mime_type, size_bytes, created_at
		FROM media_library
		WHERE asset_id = $1
		FOR UPDATE
	`, assetID)
	if err = row.Scan(&old.AssetID, &old.FileName, &old.URL, &mimeNull, &old.SizeBytes, &old.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrMediaNotFound
		}
		return err
	}
	old.MimeType = nullStringVal(mimeNull)

	if _, err = tx.Exec(ctx, `DELETE FROM media_library WHERE asset_id = $1`, assetID); err != nil {
		return err
	}
	if err = insertOutboxEvent(ctx, tx, "media_library", "DELETE", nil, mediaPayload(old)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
