package logviewer

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/gluk-w/claworc/log-viewer/internal/crypto"
	"github.com/gluk-w/claworc/log-viewer/internal/database"
	"github.com/gluk-w/claworc/log-viewer/internal/logutil"
	"github.com/gluk-w/claworc/log-viewer/internal/sshconn"
)

// ConnectionInput is the request body for creating or updating a saved
// connection, and one entry of the connections import file.
type ConnectionInput struct {
	Name                   string `json:"name" yaml:"name"`
	sshconn.CredentialSpec `yaml:",inline"`
	LogPath                string `json:"log_path,omitempty" yaml:"log_path,omitempty"`
}

// ConnectionView is a saved connection as returned by the API. Secrets are
// masked to their last four characters.
type ConnectionView struct {
	database.SavedConnection
	PasswordMasked   string `json:"password,omitempty"`
	PassphraseMasked string `json:"passphrase,omitempty"`
}

func viewOf(c *database.SavedConnection) ConnectionView {
	v := ConnectionView{SavedConnection: *c}
	if plain, err := crypto.Decrypt(c.Password); err == nil {
		v.PasswordMasked = crypto.Mask(plain)
	}
	if plain, err := crypto.Decrypt(c.Passphrase); err == nil {
		v.PassphraseMasked = crypto.Mask(plain)
	}
	return v
}

func ListConnections() ([]ConnectionView, error) {
	conns, err := database.ListConnections()
	if err != nil {
		return nil, err
	}
	views := make([]ConnectionView, 0, len(conns))
	for i := range conns {
		views = append(views, viewOf(&conns[i]))
	}
	return views, nil
}

func GetConnection(id uint) (ConnectionView, error) {
	c, err := database.GetConnection(id)
	if err != nil {
		return ConnectionView{}, err
	}
	return viewOf(c), nil
}

// CreateConnection validates in and stores it with secrets encrypted.
func CreateConnection(in ConnectionInput) (ConnectionView, error) {
	c := &database.SavedConnection{}
	if err := apply(c, in); err != nil {
		return ConnectionView{}, err
	}
	if err := database.CreateConnection(c); err != nil {
		return ConnectionView{}, fmt.Errorf("save connection: %w", err)
	}
	log.Printf("[connections] created %q (%s@%s:%d)", logutil.SanitizeForLog(c.Name),
		logutil.SanitizeForLog(c.Username), logutil.SanitizeForLog(c.Host), c.Port)
	return viewOf(c), nil
}

// UpdateConnection replaces connection id with in. An empty password or
// passphrase keeps the stored secret.
func UpdateConnection(id uint, in ConnectionInput) (ConnectionView, error) {
	c, err := database.GetConnection(id)
	if err != nil {
		return ConnectionView{}, err
	}
	if in.AuthType == c.AuthType {
		if in.Password == "" && c.Password != "" {
			if in.Password, err = crypto.Decrypt(c.Password); err != nil {
				return ConnectionView{}, fmt.Errorf("decrypt stored password: %w", err)
			}
		}
		if in.Passphrase == "" && c.Passphrase != "" {
			if in.Passphrase, err = crypto.Decrypt(c.Passphrase); err != nil {
				return ConnectionView{}, fmt.Errorf("decrypt stored passphrase: %w", err)
			}
		}
	}
	if err := apply(c, in); err != nil {
		return ConnectionView{}, err
	}
	if err := database.SaveConnection(c); err != nil {
		return ConnectionView{}, fmt.Errorf("save connection: %w", err)
	}
	log.Printf("[connections] updated %q", logutil.SanitizeForLog(c.Name))
	return viewOf(c), nil
}

func DeleteConnection(id uint) error {
	if err := database.DeleteConnection(id); err != nil {
		return err
	}
	log.Printf("[connections] deleted %d", id)
	return nil
}

// apply validates in and copies it onto c, encrypting secrets. Secrets that do
// not belong to the chosen auth type are cleared.
func apply(c *database.SavedConnection, in ConnectionInput) error {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return fmt.Errorf("%w: connection name is required", sshconn.ErrInvalidCredentials)
	}
	creds, err := in.CredentialSpec.Credentials()
	if err != nil {
		return err
	}

	var password, passphrase, keyPath string
	switch a := creds.Auth.(type) {
	case sshconn.PasswordAuth:
		password = a.Password
	case sshconn.KeyAuth:
		keyPath = a.PrivateKeyPath
		passphrase = a.Passphrase
	}
	encPassword, err := crypto.Encrypt(password)
	if err != nil {
		return fmt.Errorf("encrypt password: %w", err)
	}
	encPassphrase, err := crypto.Encrypt(passphrase)
	if err != nil {
		return fmt.Errorf("encrypt passphrase: %w", err)
	}

	c.Name = name
	c.Host = creds.Endpoint.Host
	c.Port = creds.Endpoint.Port
	c.Username = creds.Username
	c.AuthType = creds.Auth.Type()
	c.Password = encPassword
	c.PrivateKeyPath = keyPath
	c.Passphrase = encPassphrase
	c.LogPath = strings.TrimSpace(in.LogPath)
	return nil
}

// CredentialRequest is the credential part of every transport request: either
// a saved connection reference or inline credentials.
type CredentialRequest struct {
	ConnectionID uint `json:"connection_id,omitempty"`
	sshconn.CredentialSpec
}

// Resolve returns the credentials for r. For a saved connection it also
// returns the connection's default log path.
func (r CredentialRequest) Resolve() (sshconn.Credentials, string, error) {
	if r.ConnectionID == 0 {
		creds, err := r.CredentialSpec.Credentials()
		return creds, "", err
	}
	c, err := database.GetConnection(r.ConnectionID)
	if err != nil {
		return sshconn.Credentials{}, "", err
	}
	password, err := crypto.Decrypt(c.Password)
	if err != nil {
		return sshconn.Credentials{}, "", fmt.Errorf("decrypt password of %q: %w", logutil.SanitizeForLog(c.Name), err)
	}
	passphrase, err := crypto.Decrypt(c.Passphrase)
	if err != nil {
		return sshconn.Credentials{}, "", fmt.Errorf("decrypt passphrase of %q: %w", logutil.SanitizeForLog(c.Name), err)
	}
	creds, err := sshconn.CredentialSpec{
		Host:           c.Host,
		Port:           c.Port,
		Username:       c.Username,
		AuthType:       c.AuthType,
		Password:       password,
		PrivateKeyPath: c.PrivateKeyPath,
		Passphrase:     passphrase,
	}.Credentials()
	return creds, c.LogPath, err
}

type connectionsFile struct {
	Connections []ConnectionInput `yaml:"connections"`
}

// ImportConnections upserts the connections listed in a YAML file, matched by
// name. It returns the number of connections written.
func ImportConnections(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read connections file: %w", err)
	}
	var f connectionsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return 0, fmt.Errorf("parse connections file %s: %w", logutil.SanitizeForLog(path), err)
	}

	n := 0
	for i, in := range f.Connections {
		existing, err := database.GetConnectionByName(strings.TrimSpace(in.Name))
		switch {
		case err == nil:
			_, err = UpdateConnection(existing.ID, in)
		case errors.Is(err, database.ErrNotFound):
			_, err = CreateConnection(in)
		}
		if err != nil {
			return n, fmt.Errorf("connection #%d (%q): %w", i+1, logutil.SanitizeForLog(in.Name), err)
		}
		n++
	}
	log.Printf("[connections] imported %d connections from %s", n, logutil.SanitizeForLog(path))
	return n, nil
}
