// Package tokens signs and parses the access and refresh JWTs carried in cookies.
package tokens

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

var ErrInvalidSubject = errors.New("token subject is not an account id")

type AccessClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

type RefreshClaims struct {
	jwt.RegisteredClaims
}

// AccountID parses the subject claim.
func AccountID(claims jwt.RegisteredClaims) (uint, error) {
	id, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil || id == 0 {
		return 0, ErrInvalidSubject
	}
	return uint(id), nil
}

type Issued struct {
	Token     string
	JTI       string
	ExpiresAt time.Time
}

type Issuer struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Now           func() time.Time
}

func NewIssuer(accessSecret, refreshSecret []byte) *Issuer {
	return &Issuer{
		AccessSecret:  accessSecret,
		RefreshSecret: refreshSecret,
		AccessTTL:     DefaultAccessTTL,
		RefreshTTL:    DefaultRefreshTTL,
		Now:           time.Now,
	}
}

func (i *Issuer) NewAccess(accountID uint, username string) (Issued, error) {
	exp := i.Now().Add(i.AccessTTL)
	claims := AccessClaims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(accountID), 10),
			IssuedAt:  jwt.NewNumericDate(i.Now()),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.AccessSecret)
	if err != nil {
		return Issued{}, err
	}
	return Issued{Token: token, ExpiresAt: exp}, nil
}

func (i *Issuer) NewRefresh(accountID uint) (Issued, error) {
	exp := i.Now().Add(i.RefreshTTL)
	jti := uuid.NewString()
	claims := RefreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(accountID), 10),
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(i.Now()),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.RefreshSecret)
	if err != nil {
		return Issued{}, err
	}
	return Issued{Token: token, JTI: jti, ExpiresAt: exp}, nil
}

func (i *Issuer) ParseAccess(tokenStr string) (*AccessClaims, error) {
	var claims AccessClaims
	if err := i.parse(tokenStr, &claims, i.AccessSecret); err != nil {
		return nil, err
	}
	return &claims, nil
}

func (i *Issuer) ParseRefresh(tokenStr string) (*RefreshClaims, error) {
	var claims RefreshClaims
	if err := i.parse(tokenStr, &claims, i.RefreshSecret); err != nil {
		return nil, err
	}
	if claims.ID == "" {
		return nil, errors.New("refresh token without jti")
	}
	return &claims, nil
}

func (i *Issuer) parse(tokenStr string, claims jwt.Claims, secret []byte) error {
	tkn, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, errors.New("unexpected sign method")
		}
		return secret, nil
	}, jwt.WithTimeFunc(i.Now))
	if err != nil {
		return err
	}
	if !tkn.Valid {
		return errors.New("invalid token")
	}
	return nil
}
