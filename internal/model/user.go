package model

import "time"

// DefaultRole is assigned to every account created through registration.
const DefaultRole = "utilisateur"

// AdminRole may read any reservation or payment.
const AdminRole = "admin"

// User represents an application user record as stored in the
// `users` table.  Each field corresponds to a column in the
// database.  Handlers define their own response types so the
// password hash never leaves the repository layer.
//
// Fields:
//  ID           – primary key identifier of the user.
//  Email        – unique, lower-cased email address.
//  PasswordHash – bcrypt hashed password.
//  Role         – role tag (e.g. utilisateur, admin).
//  FirstName    – given name (optional).
//  LastName     – family name (optional).
//  Phone        – contact phone number (optional).
//  Country      – country of residence (optional).
//  CreatedAt    – timestamp of creation.
type User struct {
    ID           uint64    // users.id
    Email        string    // users.email
    PasswordHash string    // users.password_hash
    Role         string    // users.role
    FirstName    string    // users.first_name
    LastName     string    // users.last_name
    Phone        string    // users.phone
    Country      string    // users.country
    CreatedAt    time.Time // users.created_at
}
