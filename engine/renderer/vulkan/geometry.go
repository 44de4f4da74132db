package vulkan

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
)

/**
 * @brief Max number of simultaneously uploaded geometries
 */
const MaxGeometryCount uint32 = 4096

/**
 * @brief Buffer data for one mesh. Vertex and index data live in their own
 * host visible buffers with device addresses so indirect streams can point
 * at them.
 */
type Geometry struct {
	/** @brief The unique geometry identifier. */
	ID uint32
	/** @brief The geometry generation. Incremented every time the geometry data changes. */
	Generation uint32
	/** @brief The vertex count. */
	VertexCount uint32
	/** @brief The size of each vertex. */
	VertexElementSize uint32
	VertexBuffer      *Buffer
	/** @brief The index count. */
	IndexCount uint32
	IndexBuffer *Buffer
}

var ErrGeometryData = errors.New("vertex data does not match the vertex size")

// NewGeometry uploads vertices (vertexSize bytes each) and 32 bit indices.
func NewGeometry(dev Device, id uint32, vertexSize uint32, vertices []byte, indices []uint32) (*Geometry, error) {
	if vertexSize == 0 || len(vertices) == 0 || uint32(len(vertices))%vertexSize != 0 {
		return nil, errors.Wrapf(ErrGeometryData, "geometry %d: %d bytes, vertex size %d", id, len(vertices), vertexSize)
	}
	if id >= MaxGeometryCount {
		return nil, errors.Newf("geometry id %d exceeds %d", id, MaxGeometryCount)
	}
	g := &Geometry{
		ID:                id,
		VertexCount:       uint32(len(vertices)) / vertexSize,
		VertexElementSize: vertexSize,
		IndexCount:        uint32(len(indices)),
	}
	if err := g.Upload(dev, vertices, indices); err != nil {
		return nil, err
	}
	return g, nil
}

// Upload replaces the buffers and bumps the generation.
func (g *Geometry) Upload(dev Device, vertices []byte, indices []uint32) error {
	g.release(dev)

	vb, err := dev.CreateBuffer(&BufferInfo{
		Size:          uint64(len(vertices)),
		Usage:         vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit),
		HostVisible:   true,
		DeviceAddress: true,
		Name:          "vertex",
	})
	if err != nil {
		return errors.Wrapf(err, "geometry %d: vertex buffer", g.ID)
	}
	if err := vb.Write(0, vertices); err != nil {
		dev.DestroyBuffer(vb)
		return err
	}
	g.VertexBuffer = vb
	g.VertexCount = uint32(len(vertices)) / g.VertexElementSize

	if len(indices) > 0 {
		raw := make([]byte, 4*len(indices))
		for i, idx := range indices {
			binary.LittleEndian.PutUint32(raw[4*i:], idx)
		}
		ib, err := dev.CreateBuffer(&BufferInfo{
			Size:          uint64(len(raw)),
			Usage:         vk.BufferUsageFlags(vk.BufferUsageIndexBufferBit),
			HostVisible:   true,
			DeviceAddress: true,
			Name:          "index",
		})
		if err != nil {
			return errors.Wrapf(err, "geometry %d: index buffer", g.ID)
		}
		if err := ib.Write(0, raw); err != nil {
			dev.DestroyBuffer(ib)
			return err
		}
		g.IndexBuffer = ib
	}
	g.IndexCount = uint32(len(indices))
	g.Generation++
	return nil
}

// Bind binds the vertex and index buffers on cmd.
func (g *Geometry) Bind(dev Device, cmd *CommandBuffer) {
	dev.CmdBindVertexBuffers(cmd, []vk.Buffer{g.VertexBuffer.Handle}, []vk.DeviceSize{0})
	if g.IndexBuffer != nil {
		dev.CmdBindIndexBuffer(cmd, g.IndexBuffer.Handle, 0, vk.IndexTypeUint32)
	}
}

// Draw issues an indexed draw, or a plain draw for geometry without indices.
func (g *Geometry) Draw(dev Device, cmd *CommandBuffer, instances, firstInstance uint32) {
	if g.IndexBuffer != nil {
		dev.CmdDrawIndexed(cmd, g.IndexCount, instances, 0, 0, firstInstance)
		return
	}
	dev.CmdDraw(cmd, g.VertexCount, instances, 0, firstInstance)
}

func (g *Geometry) release(dev Device) {
	if g.VertexBuffer != nil {
		dev.DestroyBuffer(g.VertexBuffer)
		g.VertexBuffer = nil
	}
	if g.IndexBuffer != nil {
		dev.DestroyBuffer(g.IndexBuffer)
		g.IndexBuffer = nil
	}
}

func (g *Geometry) Destroy(dev Device) {
	g.release(dev)
	g.Generation = 0
}
