package model

import "time"

// Hall represents a physical screening hall.  Showtimes are scheduled
// into halls and no two live showtimes of the same hall may overlap.
//
// Fields:
//  ID          – primary key identifier.
//  OwnerID     – user ID of the hall owner.
//  Name        – unique hall name per owner.
//  Description – optional description of the hall.
//  IsActive    – whether the hall is in use.
//  CreatedAt   – creation timestamp.
//  UpdatedAt   – last update timestamp.
type Hall struct {
    ID          uint64    `json:"id"`                    // halls.id
    OwnerID     uint64    `json:"owner_id"`              // halls.owner_id
    Name        string    `json:"name"`                  // halls.name
    Description *string   `json:"description,omitempty"` // halls.description (nullable)
    IsActive    bool      `json:"is_active"`             // halls.is_active
    CreatedAt   time.Time `json:"created_at"`            // halls.created_at
    UpdatedAt   time.Time `json:"updated_at"`            // halls.updated_at
}
