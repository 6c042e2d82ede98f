package storage

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/freeoffice/fieldcam/internal/models"
)

const (
	KeyToken            = "TOKEN_ID"
	KeyStaffID          = "USER_STAFFID"
	KeyStaffFullName    = "USER_STAFFFULLNAME"
	KeyStaffCode        = "USER_STAFFCODE"
	KeyUserTypeID       = "USER_USERTYPEID"
	KeyCompanyID        = "USER_COMPANYID"
	KeyCompanyName      = "USER_COMPANYNAME"
	KeyStaffInfoID      = "USER_STAFFINFOID"
	KeyDepartmentID     = "USER_DEPARTMENTID"
	KeyDepartmentName   = "USER_DEPARTMENTNAME"
	KeyImagesPath       = "USER_IMAGESPATH"
	KeyStatusID         = "USER_STATUSID"
	KeyIsRequestApprove = "USER_ISREQUESTAPPROVE"
)

// AuthKeys lists every key written by PersistAuth
var AuthKeys = []string{
	KeyToken, KeyStaffID, KeyStaffFullName, KeyStaffCode, KeyUserTypeID,
	KeyCompanyID, KeyCompanyName, KeyStaffInfoID, KeyDepartmentID,
	KeyDepartmentName, KeyImagesPath, KeyStatusID, KeyIsRequestApprove,
}

// authWrite collects the keys to set and remove in one store update
type authWrite struct {
	set    map[string]string
	remove []string
}

func (w *authWrite) str(key string, value any) string {
	if s, ok := value.(string); ok && s != "" {
		w.set[key] = s
		return s
	}
	w.remove = append(w.remove, key)
	return ""
}

func (w *authWrite) number(key string, value any) *int {
	if n, ok := toNumber(value); ok {
		w.set[key] = strconv.FormatFloat(n, 'f', -1, 64)
		i := int(n)
		return &i
	}
	w.remove = append(w.remove, key)
	return nil
}

func (w *authWrite) boolean(key string, value any) *bool {
	var b, ok bool
	switch v := value.(type) {
	case bool:
		b, ok = v, true
	case string:
		switch v {
		case "1", "true":
			b, ok = true, true
		case "0", "false":
			b, ok = false, true
		}
	default:
		if n, isNum := toNumber(v); isNum && (n == 0 || n == 1) {
			b, ok = n == 1, true
		}
	}
	if !ok {
		w.remove = append(w.remove, key)
		return nil
	}
	w.set[key] = strconv.FormatBool(b)
	return &b
}

func toNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, !math.IsNaN(v)
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		if v == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// PersistAuth stores the session token and the staff profile fields of a
// login response. Fields with missing or unusable values are removed.
func PersistAuth(s *SessionStore, token string, user map[string]any) (models.StoredUser, error) {
	w := &authWrite{set: map[string]string{KeyToken: token}}

	stored := models.StoredUser{
		StaffID:          w.number(KeyStaffID, user["StaffID"]),
		StaffFullName:    w.str(KeyStaffFullName, user["StaffFullName"]),
		StaffCode:        w.str(KeyStaffCode, user["StaffCode"]),
		UserTypeID:       w.number(KeyUserTypeID, user["UserTypeID"]),
		CompanyID:        w.number(KeyCompanyID, user["CompanyID"]),
		CompanyName:      w.str(KeyCompanyName, user["CompanyName"]),
		StaffInfoID:      w.number(KeyStaffInfoID, user["StaffInfoID"]),
		DepartmentID:     w.number(KeyDepartmentID, user["DepartmentID"]),
		DepartmentName:   w.str(KeyDepartmentName, user["DepartmentName"]),
		ImagesPath:       w.str(KeyImagesPath, user["ImagesPath"]),
		StatusID:         w.number(KeyStatusID, user["StatusID"]),
		IsRequestApprove: w.boolean(KeyIsRequestApprove, user["IsRequestApprove"]),
	}

	if err := s.Update(w.set, w.remove); err != nil {
		return models.StoredUser{}, fmt.Errorf("failed to persist login: %w", err)
	}
	return stored, nil
}

// LoadAuth reads the persisted token and staff profile. The token is empty
// when no session is stored.
func LoadAuth(s *SessionStore) (string, models.StoredUser) {
	token, _ := s.Get(KeyToken)
	user := models.StoredUser{
		StaffID:          loadNumber(s, KeyStaffID),
		StaffFullName:    loadString(s, KeyStaffFullName),
		StaffCode:        loadString(s, KeyStaffCode),
		UserTypeID:       loadNumber(s, KeyUserTypeID),
		CompanyID:        loadNumber(s, KeyCompanyID),
		CompanyName:      loadString(s, KeyCompanyName),
		StaffInfoID:      loadNumber(s, KeyStaffInfoID),
		DepartmentID:     loadNumber(s, KeyDepartmentID),
		DepartmentName:   loadString(s, KeyDepartmentName),
		ImagesPath:       loadString(s, KeyImagesPath),
		StatusID:         loadNumber(s, KeyStatusID),
		IsRequestApprove: loadBool(s, KeyIsRequestApprove),
	}
	return token, user
}

// ClearAuth removes every auth key
func ClearAuth(s *SessionStore) error {
	return s.Delete(AuthKeys...)
}

func loadString(s *SessionStore, key string) string {
	v, _ := s.Get(key)
	return v
}

func loadNumber(s *SessionStore, key string) *int {
	v, ok := s.Get(key)
	if !ok {
		return nil
	}
	n, ok := toNumber(v)
	if !ok {
		return nil
	}
	i := int(n)
	return &i
}

func loadBool(s *SessionStore, key string) *bool {
	v, ok := s.Get(key)
	if !ok {
		return nil
	}
	var b bool
	switch v {
	case "true", "1":
		b = true
	case "false", "0":
		b = false
	default:
		return nil
	}
	return &b
}
